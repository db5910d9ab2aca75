package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"wardctl/internal/gatewayapi"
)

// clientFromFlags builds the gateway API client from the persistent flags.
func clientFromFlags(cmd *cobra.Command) *gatewayapi.Client {
	gatewayURL, _ := cmd.Flags().GetString("gateway")
	clientID, _ := cmd.Flags().GetString("client-id")
	apiKey, _ := cmd.Flags().GetString("api-key")
	return gatewayapi.NewClient(strings.TrimRight(gatewayURL, "/"), clientID, apiKey)
}

// checkCmd returns the command for dry-run statement classification.
func checkCmd() *cobra.Command {
	var connector string

	cmd := &cobra.Command{
		Use:   "check <statement>",
		Short: "Classify a SQL statement without executing it",
		Long: `Classify a SQL statement through the gateway's policy guard.

The statement is never executed; the gateway reports whether it would be
allowed, the mutating keywords and injection signatures it found, and the
enforcement mode that would apply.

Examples:
  wardctl check "SELECT * FROM users WHERE active = true"
  wardctl check --connector maindb "DELETE FROM users"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := clientFromFlags(cmd).Check(connector, args[0])
			if err != nil {
				return err
			}

			if result.Allowed {
				fmt.Println("ALLOWED")
			} else {
				fmt.Println("REJECTED")
				for _, reason := range result.Reasons {
					fmt.Printf("  - %s\n", reason)
				}
			}
			if len(result.Keywords) > 0 {
				fmt.Printf("Keywords: %s\n", strings.Join(result.Keywords, ", "))
			}
			if len(result.Patterns) > 0 {
				fmt.Printf("Patterns: %s\n", strings.Join(result.Patterns, ", "))
			}
			if result.Bypass {
				fmt.Println("Transaction bypass attempt detected")
			}
			fmt.Printf("Mode: %s (scan took %dµs)\n", result.Mode, result.DurationUs)

			if !result.Allowed && result.Mode == "enforce" {
				// Nonzero exit so CI pipelines can gate on the verdict.
				cmd.SilenceUsage = true
				return fmt.Errorf("statement would be blocked")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&connector, "connector", "c", "", "Connector name (for per-connector mode overrides)")

	return cmd
}

// healthCmd returns the command for gateway and connector health.
func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show gateway and connector health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFromFlags(cmd)

			health, err := client.Health()
			if err != nil {
				return err
			}
			fmt.Printf("Gateway: %s (%s %s)\n", health.Status, health.Service, health.Version)

			connectors, err := client.ConnectorHealth()
			if err != nil {
				return err
			}
			if len(connectors) == 0 {
				fmt.Println("No connectors configured.")
				return nil
			}

			names := make([]string, 0, len(connectors))
			for name := range connectors {
				names = append(names, name)
			}
			sort.Strings(names)

			unhealthy := 0
			for _, name := range names {
				status := connectors[name]
				if status.Healthy {
					fmt.Printf("  %-20s healthy\n", name)
					continue
				}
				unhealthy++
				fmt.Printf("  %-20s UNHEALTHY: %s\n", name, status.Error)
			}
			if unhealthy > 0 {
				cmd.SilenceUsage = true
				return fmt.Errorf("%d connector(s) unhealthy", unhealthy)
			}
			return nil
		},
	}
}

// versionCmd returns the command printing client and gateway versions.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show wardctl and gateway versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("wardctl %s\n", version)

			health, err := clientFromFlags(cmd).Health()
			if err != nil {
				fmt.Println("gateway: unreachable")
				return nil
			}
			fmt.Printf("gateway %s (%s)\n", health.Version, health.Status)
			return nil
		},
	}
}
