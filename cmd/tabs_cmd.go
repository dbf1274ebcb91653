package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/script"
)

func tabsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "List the open page tabs",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			a := openApp(ctx, appOptions{})
			defer a.close()

			tabs, err := a.engine.ListTabs(ctx)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(tabs, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(tabs) == 0 {
				fmt.Println("No open tabs.")
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tTITLE\tURL\n")
			for _, t := range tabs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.TargetID, truncateStr(t.Title, 40), truncateStr(t.URL, 70))
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func scriptsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "List the scripts in the scripts directory",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			store, err := script.NewStore(cfg.Scripts.Dir, cfg.Scripts.CacheSize)
			if err != nil {
				fatalf("Error: %s", err)
			}
			infos, err := store.List()
			if err != nil {
				fatalf("Error: %s", err)
			}
			if jsonOutput {
				if infos == nil {
					infos = []script.Info{}
				}
				data, _ := json.MarshalIndent(infos, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(infos) == 0 {
				fmt.Printf("No scripts in %s\n", store.Dir())
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tTITLE\tSTEPS\tMODIFIED\n")
			for _, s := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, truncateStr(s.Title, 50), s.Steps, s.ModTime.Format(time.DateTime))
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
