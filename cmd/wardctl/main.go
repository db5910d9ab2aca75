// Package main implements the wardctl CLI for working with a SQLWard gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.2.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "wardctl",
		Short:   "SQLWard CLI tool",
		Long:    `wardctl is a command-line tool for checking SQL statements against a SQLWard gateway and inspecting gateway health.`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("gateway", defaultGatewayURL(), "Gateway base URL (or SQLWARD_GATEWAY_URL)")
	rootCmd.PersistentFlags().String("client-id", "wardctl", "Client ID to authenticate as")
	rootCmd.PersistentFlags().String("api-key", os.Getenv("SQLWARD_API_KEY"), "API key (or SQLWARD_API_KEY)")

	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultGatewayURL() string {
	if url := os.Getenv("SQLWARD_GATEWAY_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}
