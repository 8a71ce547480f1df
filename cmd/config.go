// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"

	"bichat/cli/internal/config"
	"bichat/cli/internal/render"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `The config command reads and writes the non-secret settings in the config file.
Secrets (access token, warehouse DSN, API keys) are managed with 'bichat login' and
'bichat logout'.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective settings, including environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := make([][]string, 0, len(config.Keys()))
		for _, k := range config.Keys() {
			v, err := cfg.Get(k)
			if err != nil {
				return err
			}
			rows = append(rows, []string{k, v})
		}
		render.Table(os.Stdout, []string{"key", "value"}, rows)
		secret := func(v string) string {
			if v == "" {
				return "not set"
			}
			return "set"
		}
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("databricks token: %s, warehouse dsn: %s, anthropic key: %s",
			secret(cfg.Databricks.Token), secret(cfg.Warehouse.DSN), secret(cfg.Agent.AnthropicKey)))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		if err := c.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(configPath, c); err != nil {
			return err
		}
		pterm.Success.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := configPath
		if p == "" {
			var err error
			if p, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		fmt.Println(p)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configPathCmd)
}
