// Command flowctl is the noun-group CLI for talking to a running flowd
// daemon: list and edit flows/actions/sensors, trigger runs, and inspect
// device connectivity. It mirrors the shape of newtron's CLI (device
// selector flag, per-resource noun groups, dry-run-free since flowctl
// calls flowd over HTTP rather than mutating device state directly) but
// talks to pkg/flowclient instead of an in-process object graph.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/flowclient"
	"github.com/newtron-network/flowmesh/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	serverURL  string
	stableID   string
	jsonOutput bool

	client *flowclient.Client
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "flowctl",
	Short:         "Control a flowmesh daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `flowctl is a noun-group CLI for a running flowd daemon.

Commands are organized by resource (flow, action, sensor, device).
Most commands require -d (the device's stable id):

  flowctl -d pixel-7a flow list
  flowctl -d pixel-7a flow run morning-routine
  flowctl -d pixel-7a sensor list
  flowctl -d pixel-7a device show`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isHelpOrVersion(cmd) {
			return nil
		}
		app.client = flowclient.New(app.serverURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.serverURL, "server", "S", defaultServerURL(), "flowd base URL")
	rootCmd.PersistentFlags().StringVarP(&app.stableID, "device", "d", "", "device stable id")

	for _, cmd := range []*cobra.Command{flowCmd, actionCmd, sensorCmd, deviceCmd, auditCmd, authCmd} {
		addOutputFlags(cmd)
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(versionCmd)
}

func defaultServerURL() string {
	if v := os.Getenv("FLOWD_ADDR"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flowctl %s\n", version.Info())
	},
}

// addOutputFlags registers --json as a persistent flag on a noun-group
// parent command so every subcommand inherits it.
func addOutputFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
}

// requireDevice returns the configured stable device id or an error.
func requireDevice() (string, error) {
	if app.stableID == "" {
		return "", fmt.Errorf("device required: use -d <stable-id> flag")
	}
	return app.stableID, nil
}

// isHelpOrVersion checks whether cmd (or any ancestor) is help or version.
func isHelpOrVersion(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version":
			return true
		}
	}
	return false
}
