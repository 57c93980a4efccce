package cmd

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hibernaut/hibernaut/internal/config"
)

// exitCodeConfigInvalid matches spec.md §6's documented check-config exit
// code for an invalid file.
const exitCodeConfigInvalid = 2

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the TOML config file without starting the server",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
				os.Exit(exitCodeConfigInvalid)
				return nil
			}

			sites, err := cfg.Sites()
			if err != nil {
				fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
				os.Exit(exitCodeConfigInvalid)
				return nil
			}

			pterm.Success.Printfln("%s is valid: %d site(s), listening on port %d", configPath, len(sites), cfg.HibernatorPort)
			for _, s := range sites {
				pterm.Info.Printfln("  %s -> %v (service %s)", s.Name, s.Hosts, s.ServiceUnitName)
			}
			return nil
		},
	}
}
