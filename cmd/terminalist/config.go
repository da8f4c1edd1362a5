package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/terminalist/terminalist/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the config file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteDefault(path, configForce); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long: `Print the settings after the config file, TERMINALIST_* environment
variables and defaults are merged.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		body, err := cfg.Encode()
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("# Source: %s\n\n", cfg.Source())
		os.Stdout.Write(body)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
