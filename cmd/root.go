// Package cmd holds the concierge CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge - the portfolio assistant service",
	Long:  `Concierge runs the conversational assistant behind the portfolio builder's sidebar: routing, agents, tools, and the streaming chat API.`,
}

func Execute() error {
	return rootCmd.Execute()
}
