// cmd/prompt-switcher/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "prompt-switcher",
		Short:         "Route raw requests into prompt templates",
		Long:          "Prompt Switcher wraps a raw request into the best matching prompt template, chosen explicitly or by a chat-completion classifier.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default: configs/config.yaml)")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newOptimizeCmd(&configPath))
	rootCmd.AddCommand(newAgentsCmd(&configPath))
	rootCmd.AddCommand(newValidateCmd())
	return rootCmd
}
