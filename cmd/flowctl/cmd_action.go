package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/cli"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Manage reusable actions",
	Long: `Manage reusable actions (composite gestures) on a device.

Requires -d (device) flag.

Examples:
  flowctl -d pixel-7a action list`,
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		actions, err := app.client.ListActions(context.Background(), stableID)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(actions)
		}

		if len(actions) == 0 {
			fmt.Println("No actions configured")
			return nil
		}

		t := cli.NewTable("ACTION ID", "KIND", "ENABLED", "CHILDREN", "EXECUTIONS")
		for _, a := range actions {
			t.Row(a.ActionID, string(a.Kind), strconv.FormatBool(a.Enabled),
				strconv.Itoa(len(a.Children)), strconv.Itoa(a.ExecutionCount))
		}
		t.Flush()
		return nil
	},
}

func init() {
	actionCmd.AddCommand(actionListCmd)
}
