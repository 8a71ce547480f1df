// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"bichat/cli/internal/keychain"

	"github.com/spf13/cobra"
)

// logoutCmd removes every secret bichat stored in the OS keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove all saved credentials and tokens",
	Long: `The logout command clears the Databricks access token, the warehouse DSN and the
Anthropic API key from the OS keychain. The config file and environment variables are
left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			return err
		}
		if err := km.ClearAll(); err != nil {
			return err
		}
		fmt.Println("✅ All credentials and tokens have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
