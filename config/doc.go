// Package config loads podflow configuration from a YAML file, an optional
// .env file and the process environment.
//
// Lookup order is config.yml, then .env, then environment variables, with
// later sources overriding earlier ones. Environment keys map onto nested
// keys by underscore, so ENGINE_POLL_INTERVAL sets engine.poll_interval.
//
//	var cfg podflowConfig
//	err := config.LoadConfig("podflow", &cfg, config.WithConfigFile(path))
package config
