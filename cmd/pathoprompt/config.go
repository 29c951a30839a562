package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/config"
	"github.com/jackzampolin/pathoprompt/internal/home"
	"github.com/jackzampolin/pathoprompt/internal/output"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to --config, or to ~/.pathoprompt/config.yaml.
An existing file is kept unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			h, err := home.New(homeDir)
			if err != nil {
				return err
			}
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path = h.ConfigPath()
		}
		if err := config.WriteDefault(path, configInitForce); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration and available providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadServices(cmd)
		if err != nil {
			return err
		}
		return output.Print(map[string]any{
			"config_file": s.Config.ConfigFile(),
			"home":        s.Home.Path(),
			"config":      s.Config.Get(),
			"providers":   s.Registry.ListLLM(),
		})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
