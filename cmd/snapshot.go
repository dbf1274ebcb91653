package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
)

func snapshotCmd() *cobra.Command {
	var (
		interactive bool
		compact     bool
		maxDepth    int
		maxChars    int
		jsonOutput  bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot <tabId|urlPattern>",
		Short: "Print a tab's accessibility outline with aria/ selectors for scripting",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			a := openApp(ctx, appOptions{})
			defer a.close()

			opts := browser.DefaultOutlineOptions()
			opts.Interactive = interactive
			opts.Compact = compact
			opts.MaxDepth = maxDepth
			if maxChars > 0 {
				opts.MaxChars = maxChars
			}
			out, err := a.engine.Snapshot(ctx, args[0], opts)
			if err != nil {
				fatalf("Error [%s]: %s", engine.Code(err), err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(out, "", "  ")
				fmt.Println(string(data))
				return
			}
			fmt.Printf("%s %s\n\n", styleLabel.Render(out.TargetID), out.Page.URL)
			fmt.Println(out.Text)
			if out.Truncated {
				fmt.Println(styleWarn.Render("(truncated)"))
			}
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "only interactive elements")
	cmd.Flags().BoolVarP(&compact, "compact", "c", false, "drop unnamed structural nodes")
	cmd.Flags().IntVar(&maxDepth, "depth", 0, "maximum tree depth (0 = unlimited)")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "truncate the outline")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
