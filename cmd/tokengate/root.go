package main

import (
	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/config"
)

type rootFlags struct {
	configPath string
	envFiles   []string
}

func (f *rootFlags) load(cmd *cobra.Command) (*config.Config, error) {
	var opts []config.Option
	if cmd.Flags().Changed("env-file") {
		opts = append(opts, config.WithEnvFiles(f.envFiles...))
	}
	return config.Load(cmd.Context(), f.configPath, opts...)
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "tokengate",
		Short:        "Bearer token gate backed by a remote JWKS",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (default ./tokengate.yaml if present)")
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "dotenv files to load")

	cmd.AddCommand(
		newServeCmd(flags),
		newVerifyCmd(flags),
		newJWKSCmd(flags),
	)
	return cmd
}
