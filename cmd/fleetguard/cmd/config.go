package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := v.AllSettings()
		if audit, ok := settings["audit"].(map[string]any); ok {
			if h, ok := audit["webhook_auth_header"].(string); ok && h != "" {
				audit["webhook_auth_header"] = "<redacted>"
			}
		}
		if storage, ok := settings["storage"].(map[string]any); ok {
			if dsn, ok := storage["dsn"].(string); ok && dsn != "" {
				storage["dsn"] = "<redacted>"
			}
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(settings)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
