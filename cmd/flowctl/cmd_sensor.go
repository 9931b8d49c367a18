package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/cli"
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Manage sensors",
	Long: `Manage sensors published to the home automation broker.

Requires -d (device) flag.

Examples:
  flowctl -d pixel-7a sensor list`,
}

var sensorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sensors",
	RunE: func(cmd *cobra.Command, args []string) error {
		stableID, err := requireDevice()
		if err != nil {
			return err
		}
		sensors, err := app.client.ListSensors(context.Background(), stableID)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(sensors)
		}

		if len(sensors) == 0 {
			fmt.Println("No sensors configured")
			return nil
		}

		t := cli.NewTable("SENSOR ID", "NAME", "TYPE", "UNIT", "INTERVAL")
		for _, s := range sensors {
			t.Row(s.SensorID, s.FriendlyName, string(s.SensorType), s.Unit,
				fmt.Sprintf("%ds", s.UpdateIntervalSeconds))
		}
		t.Flush()
		return nil
	},
}

func init() {
	sensorCmd.AddCommand(sensorListCmd)
}
