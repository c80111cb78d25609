package main

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/edumarques81/beebridge/internal/config"
)

func newConfigFileCmd() *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "config-file",
		Short: "Print the config file path, creating it with defaults if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolvedConfigPath()
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)

			if !open {
				return nil
			}
			if err := exec.Command("xdg-open", path).Start(); err != nil {
				return fmt.Errorf("open config file: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "open the file with the default editor")
	return cmd
}
