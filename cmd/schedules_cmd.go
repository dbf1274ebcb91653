package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/cron"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

func schedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Inspect and trigger scheduled runs",
	}
	cmd.AddCommand(schedulesListCmd())
	cmd.AddCommand(schedulesRunCmd())
	cmd.AddCommand(schedulesLogCmd())
	return cmd
}

func schedulesListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules (live state when the server is running)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			resp, err := gatewayRPC(cfg, protocol.MethodSchedulesList, nil, rpcTimeout, nil)
			if err != nil {
				// no server: show what the config declares
				jobs, cerr := cron.JobsFromConfig(cfg.Schedules)
				if cerr != nil {
					fatalf("Error: %s", cerr)
				}
				printSchedules(jobs, jsonOutput)
				return
			}
			if !resp.OK {
				rpcFailed(resp)
			}
			var result struct {
				Schedules []cron.Job `json:"schedules"`
			}
			if err := decodePayload(resp.Payload, &result); err != nil {
				fatalf("Error parsing response: %s", err)
			}
			printSchedules(result.Schedules, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func schedulesRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <scheduleId>",
		Short: "Fire a schedule now on the running server",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			resp, err := gatewayRPC(cfg, protocol.MethodSchedulesRun, map[string]string{"id": args[0]}, 10*time.Minute, nil)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if !resp.OK {
				rpcFailed(resp)
			}
			var entry cron.RunLogEntry
			if err := decodePayload(resp.Payload, &entry); err != nil {
				fatalf("Error parsing response: %s", err)
			}
			if entry.Status != "ok" {
				fmt.Println(styleFail.Render(fmt.Sprintf("FAILED %s (run %s): %s", entry.JobID, orDash(entry.RunID), entry.Error)))
				os.Exit(1)
			}
			fmt.Println(styleOK.Render(fmt.Sprintf("OK %s (run %s)", entry.JobID, orDash(entry.RunID))))
		},
	}
}

func schedulesLogCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "log [scheduleId]",
		Short: "Show recent scheduled runs from the running server",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			params := map[string]any{"limit": limit}
			if len(args) == 1 {
				params["id"] = args[0]
			}
			resp, err := gatewayRPC(cfg, protocol.MethodSchedulesLog, params, rpcTimeout, nil)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if !resp.OK {
				rpcFailed(resp)
			}
			var result struct {
				Runs []cron.RunLogEntry `json:"runs"`
			}
			if err := decodePayload(resp.Payload, &result); err != nil {
				fatalf("Error parsing response: %s", err)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(result.Runs, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(result.Runs) == 0 {
				fmt.Println("No scheduled runs yet.")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIME\tSCHEDULE\tRUN\tATTEMPTS\tSTATUS\tERROR\n")
			for _, e := range result.Runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					time.UnixMilli(e.Ts).Format(time.DateTime),
					e.JobID, orDash(e.RunID), e.Attempts, e.Status, truncateStr(e.Error, 60))
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func printSchedules(jobs []cron.Job, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(jobs) == 0 {
		fmt.Println("No schedules configured.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSCRIPT\tENABLED\tSCHEDULE\tNEXT RUN\tLAST\n")
	for _, j := range jobs {
		next := "-"
		if j.State.NextRunAtMS != nil {
			next = time.UnixMilli(*j.State.NextRunAtMS).Format(time.DateTime)
		}
		last := "never"
		if j.State.LastRunAtMS != nil {
			last = time.UnixMilli(*j.State.LastRunAtMS).Format(time.DateTime) + " " + j.State.LastStatus
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n", j.ID, j.ScriptID, j.Enabled, describeSchedule(j.Schedule), next, last)
	}
	tw.Flush()
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.KindCron:
		return s.Expr
	case cron.KindEvery:
		return "every " + (time.Duration(s.EveryMS) * time.Millisecond).String()
	case cron.KindAt:
		return "at " + time.UnixMilli(s.AtMS).Format(time.RFC3339)
	}
	return s.Kind
}
