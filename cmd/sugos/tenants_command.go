package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTenantsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "List the configured tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			type tenantRow struct {
				Key         string `json:"key"`
				DisplayName string `json:"display_name"`
				APIBaseURL  string `json:"api_base_url"`
			}
			list := make([]tenantRow, 0, len(cfg.Tenants))
			rows := make([][]string, 0, len(cfg.Tenants))
			for _, k := range cfg.TenantKeys() {
				t := cfg.Tenants[k]
				list = append(list, tenantRow{Key: k, DisplayName: t.DisplayName, APIBaseURL: t.APIBaseURL})
				rows = append(rows, []string{k, t.DisplayName, t.APIBaseURL})
			}
			if wantJSON(cmd, asJSON) {
				return writeJSON(cmd, list)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Name", "API"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
