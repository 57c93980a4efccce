// Package cmd holds hibernaut's CLI surface: the "serve" entry point plus
// the "status" and "check-config" operator subcommands described in
// SPEC_FULL.md §8, built with the same cobra/pflag stack the CLI pack
// entries use.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hibernaut/hibernaut/internal/logger"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "./hibernaut.toml"

var configPath string

// NewRootCmd builds the root command. serve is the default action when no
// subcommand is given.
func NewRootCmd(logInstance *slog.Logger, styledLogger *logger.StyledLogger) *cobra.Command {
	root := &cobra.Command{
		Use:           "hibernaut",
		Short:         "Hibernates idle HTTP backends and wakes them on demand",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), logInstance, styledLogger)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath, "path to hibernaut's TOML config file")

	root.AddCommand(newServeCmd(logInstance, styledLogger))
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCheckConfigCmd())

	return root
}
