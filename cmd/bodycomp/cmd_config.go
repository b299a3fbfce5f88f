package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bodycomp/pkg/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the configuration file",
	}

	cmd.AddCommand(newConfigLsCommand())
	cmd.AddCommand(newConfigResetCommand())
	cmd.AddCommand(newConfigSaveCommand())

	return cmd
}

func newConfigLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration: defaults overlaid with whatever
the configuration file sets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace the configuration file with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", configPath)
			return nil
		},
	}
}

func newConfigSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration back to the file",
		Long: `Write the effective configuration to the configuration file,
normalizing it and filling in defaults for unset settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SaveConfig(cfg, configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration to %s\n", configPath)
			return nil
		},
	}
}
