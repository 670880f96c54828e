package cli

import (
	"fmt"
	"os"

	"github.com/Davincible/polypasshash/pkg/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := newEnv(cmd)
				if err != nil {
					return err
				}
				return e.writeJSON(e.cfg.GetConfig())
			},
		},
		newConfigInitCommand(),
	)

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(e.cfg.Path()); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite it", e.cfg.Path())
			}
			if force {
				e.cfg.SetConfig(config.DefaultConfig())
			}
			if err := e.cfg.SaveConfig(); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Fprintf(e.out, "✓ Wrote %s\n", e.cfg.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
