package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/cli"
	"github.com/newtron-network/flowmesh/pkg/flowclient"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit trail of connect/disconnect events and flow runs.

Examples:
  flowctl audit list --device pixel-7a
  flowctl audit list --last 24h
  flowctl audit list --failures`,
}

var (
	auditStableID string
	auditUser     string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := flowclient.AuditQuery{
			StableID:     auditStableID,
			User:         auditUser,
			FailuresOnly: auditFailures,
			Limit:        auditLimit,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			q.Last = d
		}

		events, err := app.client.QueryAudit(context.Background(), q)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "DEVICE", "OPERATION", "STATUS")
		for _, e := range events {
			status := cli.Green("ok")
			if !e.Success {
				status = cli.Red("failed")
			}
			t.Row(e.Timestamp.Format("2006-01-02 15:04:05"), e.User, e.StableID, e.Operation, status)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditStableID, "device", "", "filter by device stable id")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "filter by user")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "show events from last duration (e.g. 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
