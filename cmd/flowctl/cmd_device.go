package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/cli"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect device connectivity",
	Long: `Inspect a device's connection state and performance rollup.

Requires -d (device) flag.

Examples:
  flowctl -d pixel-7a device show
  flowctl -d pixel-7a device services`,
}

var deviceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show device connectivity state",
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		status, err := app.client.GetDeviceStatus(context.Background(), stableID)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(status)
		}

		fmt.Printf("Device: %s\n", cli.Bold(status.StableDeviceID))
		state := cli.Red(status.State)
		if status.Watched {
			state = cli.Green(status.State)
		}
		fmt.Printf("State: %s\n", state)
		fmt.Printf("Watched: %v\n", status.Watched)
		return nil
	},
}

var deviceServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Show queue depth and performance rollup",
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		svc, err := app.client.GetDeviceServices(context.Background(), stableID)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(svc)
		}

		fmt.Printf("Device: %s\n", cli.Bold(svc.StableDeviceID))
		fmt.Printf("Watched: %v\n", svc.Watched)
		fmt.Printf("State: %s\n", svc.State)
		fmt.Printf("Queue depth: %d\n", svc.QueueDepth)
		if len(svc.Performance) > 0 {
			var pretty map[string]interface{}
			if err := json.Unmarshal(svc.Performance, &pretty); err == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Printf("Performance:\n%s\n", out)
			}
		}
		return nil
	},
}

func init() {
	deviceCmd.AddCommand(deviceShowCmd)
	deviceCmd.AddCommand(deviceServicesCmd)
}
