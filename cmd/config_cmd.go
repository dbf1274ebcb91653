package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/cron"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configClickableCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			data, _ := json.MarshalIndent(redactConfig(cfg), "", "  ")
			fmt.Println(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file, its schedules and the clickable config it points to",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fatalf("Invalid config: %s", err)
			}
			if p := cfg.Clickable.Path; p != "" {
				data, err := os.ReadFile(p)
				if err != nil && !os.IsNotExist(err) {
					fatalf("Invalid clickable config: %s", err)
				}
				if err == nil {
					if _, err := config.ParseClickable(p, data); err != nil {
						fatalf("Invalid clickable config: %s", err)
					}
				}
			}
			jobs, err := cron.JobsFromConfig(cfg.Schedules)
			if err != nil {
				fatalf("Invalid schedules: %s", err)
			}
			if _, err := cron.NewService(jobs, nil); err != nil {
				fatalf("Invalid schedules: %s", err)
			}
			fmt.Printf("Config at %s is valid.\n", cfgPath)
		},
	}
}

func configClickableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clickable",
		Short: "Print the effective clickable config as YAML",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustConfig()
			p := config.NewClickableProvider(cfg.Clickable.Path, nil)
			data, err := yaml.Marshal(p.Snapshot())
			if err != nil {
				fatalf("Error: %s", err)
			}
			fmt.Print(string(data))
		},
	}
}

// redactConfig returns a JSON-safe copy with secrets masked.
func redactConfig(cfg *config.Config) interface{} {
	data, _ := json.Marshal(cfg)
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	redactMap(raw)
	return raw
}

func redactMap(m map[string]interface{}) {
	secretKeys := map[string]bool{"token": true, "headers": true}
	for k, v := range m {
		if secretKeys[k] {
			switch t := v.(type) {
			case string:
				if len(t) > 8 {
					m[k] = t[:4] + "****" + t[len(t)-4:]
				} else if t != "" {
					m[k] = "****"
				}
			case map[string]interface{}:
				for hk := range t {
					t[hk] = "****"
				}
			}
		} else if sub, ok := v.(map[string]interface{}); ok {
			redactMap(sub)
		}
	}
}
