package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jmcleod/fleetguard/audit"
)

var (
	auditEvent  string
	auditLimit  int
	auditOutput string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the stored security audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored security events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeRepo, err := openRepository(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer closeRepo()

		records, err := audit.NewRepositorySink(repo, audit.WithRecordLogger(logger)).List(auditEvent, auditLimit)
		if err != nil {
			return fmt.Errorf("listing audit events: %w", err)
		}
		switch auditOutput {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		case "table":
			renderAuditTable(cmd.OutOrStdout(), records)
			return nil
		default:
			return fmt.Errorf("unknown output format %q", auditOutput)
		}
	},
}

func renderAuditTable(w io.Writer, records []audit.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Event", "Identity", "Client", "Details"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Timestamp.Local().Format(time.DateTime),
			rec.Event,
			rec.IdentityID,
			rec.ClientAgent,
			formatDetails(rec.Details),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(records)})
	t.Render()
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().StringVar(&auditEvent, "event", "", "only show events with this name")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of events (0 for all)")
	auditListCmd.Flags().StringVarP(&auditOutput, "output", "o", "table", "output format: table or json")
}
