package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/history"
)

func historyCmd() *cobra.Command {
	var (
		scriptID   string
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "history [runId]",
		Short: "Show past runs, or one run in detail",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				fatalf("Error: %s", err)
			}
			defer store.Close()
			ctx := context.Background()

			if len(args) == 1 {
				run, err := store.Get(ctx, args[0])
				if err != nil {
					fatalf("Error: %s", err)
				}
				data, _ := json.MarshalIndent(run, "", "  ")
				fmt.Println(string(data))
				return
			}

			runs, err := store.List(ctx, scriptID, limit)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if jsonOutput {
				if runs == nil {
					runs = []history.Run{}
				}
				data, _ := json.MarshalIndent(runs, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "RUN\tSCRIPT\tSTATUS\tSTARTED\tMS\tERROR\n")
			for _, r := range runs {
				status := styleOK.Render(r.Status)
				if r.Status != history.StatusOK {
					status = styleFail.Render(r.Status)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID[:min(8, len(r.ID))],
					r.ScriptID,
					status,
					r.Started().Format(time.DateTime),
					r.DurationMs,
					truncateStr(r.Error, 60),
				)
			}
			tw.Flush()
		},
	}
	cmd.Flags().StringVar(&scriptID, "script", "", "only runs of this script")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
