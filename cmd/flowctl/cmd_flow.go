package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/cli"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Manage flows",
	Long: `Manage flows on a device.

Requires -d (device) flag.

Examples:
  flowctl -d pixel-7a flow list
  flowctl -d pixel-7a flow show morning-routine
  flowctl -d pixel-7a flow create -f morning-routine.json
  flowctl -d pixel-7a flow run morning-routine
  flowctl -d pixel-7a flow history morning-routine
  flowctl -d pixel-7a flow delete morning-routine`,
}

var flowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all flows",
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		flows, err := app.client.ListFlows(context.Background(), stableID)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(flows)
		}

		if len(flows) == 0 {
			fmt.Println("No flows configured")
			return nil
		}

		t := cli.NewTable("FLOW ID", "NAME", "ENABLED", "PRIORITY", "INTERVAL", "STEPS")
		for _, f := range flows {
			t.Row(f.FlowID, f.Name, strconv.FormatBool(f.Enabled), f.Priority.String(),
				strconv.Itoa(f.UpdateIntervalSeconds)+"s", strconv.Itoa(len(f.Steps)))
		}
		t.Flush()
		return nil
	},
}

var flowShowCmd = &cobra.Command{
	Use:   "show <flow-id>",
	Short: "Show a single flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		flow, err := app.client.GetFlow(context.Background(), stableID, args[0])
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(flow)
		}

		fmt.Printf("Flow: %s\n", cli.Bold(flow.Name))
		fmt.Printf("ID: %s\n", flow.FlowID)
		fmt.Printf("Enabled: %v\n", flow.Enabled)
		fmt.Printf("Priority: %s\n", flow.Priority.String())
		fmt.Printf("Update interval: %ds\n", flow.UpdateIntervalSeconds)
		fmt.Printf("Steps: %d\n", len(flow.Steps))
		for i, s := range flow.Steps {
			fmt.Printf("  %d. %s\n", i+1, s.Kind)
		}
		return nil
	},
}

var flowCreateFile string

var flowCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a flow from a JSON file",
	Long: `Create a flow from a JSON file describing its steps.

Requires -d (device) flag.

Examples:
  flowctl -d pixel-7a flow create -f morning-routine.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		if flowCreateFile == "" {
			return fmt.Errorf("-f <file> is required")
		}
		data, err := os.ReadFile(flowCreateFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", flowCreateFile, err)
		}
		var flow flowmodel.Flow
		if err := json.Unmarshal(data, &flow); err != nil {
			return fmt.Errorf("parsing %s: %w", flowCreateFile, err)
		}

		created, err := app.client.CreateFlow(context.Background(), stableID, &flow)
		if err != nil {
			return err
		}
		fmt.Printf("%s flow %q created\n", cli.Green("OK"), created.FlowID)
		return nil
	},
}

var flowDeleteCmd = &cobra.Command{
	Use:   "delete <flow-id>",
	Short: "Delete a flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		if err := app.client.DeleteFlow(context.Background(), stableID, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s flow %q deleted\n", cli.Green("OK"), args[0])
		return nil
	},
}

var flowRunCmd = &cobra.Command{
	Use:   "run <flow-id>",
	Short: "Enqueue a flow for immediate execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		if err := app.client.RunFlow(context.Background(), stableID, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s flow %q enqueued\n", cli.Green("OK"), args[0])
		return nil
	},
}

var flowHistoryCmd = &cobra.Command{
	Use:   "history <flow-id>",
	Short: "Show a flow's recent execution history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		results, err := app.client.FlowHistory(context.Background(), stableID, args[0])
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(results)
		}

		if len(results) == 0 {
			fmt.Println("No execution history")
			return nil
		}

		t := cli.NewTable("EXECUTION ID", "STARTED", "SUCCESS", "STEPS", "DURATION")
		for _, r := range results {
			status := cli.Green("yes")
			if !r.Success {
				status = cli.Red("no")
			}
			t.Row(r.ExecutionID, r.StartedAt.Format("2006-01-02 15:04:05"), status,
				fmt.Sprintf("%d/%d", r.ExecutedSteps, r.TotalSteps),
				fmt.Sprintf("%.0fms", r.ExecutionTimeMS))
		}
		t.Flush()
		return nil
	},
}

func init() {
	flowCreateCmd.Flags().StringVarP(&flowCreateFile, "file", "f", "", "path to a flow definition JSON file")

	flowCmd.AddCommand(flowListCmd)
	flowCmd.AddCommand(flowShowCmd)
	flowCmd.AddCommand(flowCreateCmd)
	flowCmd.AddCommand(flowDeleteCmd)
	flowCmd.AddCommand(flowRunCmd)
	flowCmd.AddCommand(flowHistoryCmd)
}
