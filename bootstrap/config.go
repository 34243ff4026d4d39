package bootstrap

import (
	"github.com/kbukum/podflow/config"
)

// Config constrains application config types. Structs embedding
// config.ServiceConfig get GetServiceConfig through promotion and add
// their own ApplyDefaults and Validate.
//
//	type ServeConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Engine engine.Config `yaml:"engine" mapstructure:"engine"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
