package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"axon/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a starter configuration file with the default settings.

The file goes to ~/.axon/config.yaml unless --config points elsewhere.
Existing files are left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadedConfig == nil {
				return fmt.Errorf("configuration not initialized")
			}

			if _, err := os.Stat(loadedConfigPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", loadedConfigPath)
			}

			if err := config.SaveTo(loadedConfig, loadedConfigPath); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", loadedConfigPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
