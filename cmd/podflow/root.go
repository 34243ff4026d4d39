package main

import (
	"github.com/spf13/cobra"
)

const serviceName = "podflow"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Podflow orchestrates ML pipeline graphs",
		Long:          `Podflow runs pipeline graphs node by node as their dependencies complete and streams per-node status to observers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML config file (default: searched in standard locations)")
	root.PersistentFlags().String("env-file", "", ".env file to load before reading the environment")

	root.AddCommand(newServeCmd(), newRunCmd(), newValidateCmd(), newVersionCmd())
	return root
}
