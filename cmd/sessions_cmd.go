package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/session"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// Debug sessions live as long as the process holding the browser connection,
// so these commands talk to a running `tabpilot serve --ws`.

const rpcTimeout = 30 * time.Second

func attachCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "attach <tabId|urlPattern>",
		Short: "Attach the debugger to a tab through the running server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			resp, err := gatewayRPC(cfg, protocol.MethodAttachDebugger, map[string]string{"tab": args[0]}, rpcTimeout, nil)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if !resp.OK {
				rpcFailed(resp)
			}
			var s session.Session
			if err := decodePayload(resp.Payload, &s); err != nil {
				fatalf("Error parsing response: %s", err)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(s, "", "  ")
				fmt.Println(string(data))
				return
			}
			fmt.Printf("Attached to tab %s (protocol %s)\n", s.TabID, orDash(s.ProtocolVersion))
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func detachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <tabId>",
		Short: "Detach the debugger from a tab through the running server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			resp, err := gatewayRPC(cfg, protocol.MethodDetachDebugger, map[string]string{"tabId": args[0]}, rpcTimeout, nil)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if !resp.OK {
				rpcFailed(resp)
			}
			fmt.Printf("Detached from tab %s\n", args[0])
		},
	}
}

func sessionsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the debug sessions held by the running server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			resp, err := gatewayRPC(cfg, protocol.MethodListSessions, nil, rpcTimeout, nil)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if !resp.OK {
				rpcFailed(resp)
			}
			var result struct {
				Sessions []session.Session `json:"sessions"`
			}
			if err := decodePayload(resp.Payload, &result); err != nil {
				fatalf("Error parsing response: %s", err)
			}
			printSessions(result.Sessions, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printSessions(sessions []session.Session, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(sessions, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No debug sessions.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TAB\tSTATE\tPROTOCOL\tATTACHED\tREATTACHES\n")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			s.TabID,
			s.State,
			orDash(s.ProtocolVersion),
			s.AttachedAt.Format(time.DateTime),
			s.Reattaches,
		)
	}
	tw.Flush()
}

func mustConfig() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("Error loading config: %s", err)
	}
	return cfg
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
