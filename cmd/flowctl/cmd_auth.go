package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/flowmesh/pkg/cli"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect permission enforcement",
}

var authWhoAmICmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the calling user's resolved permissions",
	Long: `Show which permissions the caller identity (the X-Flowmesh-User header,
or "api" if unset) resolves to against flowd's configured auth policy.

Examples:
  flowctl auth whoami
  flowctl auth whoami --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		who, err := app.client.WhoAmI(context.Background())
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(who)
		}

		if !who.Enforced {
			fmt.Printf("user: %s\n", who.User)
			fmt.Println("permission enforcement: disabled (no auth policy configured on flowd)")
			return nil
		}

		fmt.Printf("user: %s\n", who.User)
		if who.SuperUser {
			fmt.Println("superuser: yes (all permissions granted)")
			return nil
		}
		if len(who.Groups) > 0 {
			fmt.Printf("groups: %s\n", strings.Join(who.Groups, ", "))
		}
		if len(who.Permissions) == 0 {
			fmt.Println("permissions: none")
			return nil
		}
		t := cli.NewTable("PERMISSION")
		for _, p := range who.Permissions {
			t.Row(p)
		}
		t.Flush()
		return nil
	},
}

func init() {
	authCmd.AddCommand(authWhoAmICmd)
}
