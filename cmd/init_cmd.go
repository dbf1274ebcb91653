package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
)

func initCmd() *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard: browser, scripts directory, server token",
		Run: func(cmd *cobra.Command, args []string) {
			runInit(nonInteractive)
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "yes", false, "write the defaults without prompting")
	return cmd
}

const exampleScript = `{
  // Clicks the first link on example.com and reads the heading.
  title: "Example",
  targetUrl: "https://example.com",
  parameters: {},
  steps: [
    {type: "waitForElement", selectors: [["h1"]]},
    {type: "click", selectors: [["aria/More information..."], ["text/More information"]]},
  ],
  outputSchema: {
    fields: [{name: "heading", path: "h1"}],
  },
}
`

func runInit(nonInteractive bool) {
	cfgPath := resolveConfigPath()

	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Found existing config at %s\n", cfgPath)
		useExisting := true
		if !nonInteractive {
			var err error
			if useExisting, err = promptConfirm("Use existing config as base?", true); err != nil {
				fmt.Println("Cancelled.")
				return
			}
		}
		if useExisting {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("Warning: could not load existing config: %v\n", err)
			} else {
				cfg = loaded
			}
		}
	}

	var token string
	if !nonInteractive {
		var ok bool
		if token, ok = initWizard(cfg); !ok {
			fmt.Println("Cancelled.")
			return
		}
	}

	// The token lives in .env, not in the config file.
	cfg.Server.Token = ""
	if err := config.Save(cfgPath, cfg); err != nil {
		fatalf("Error saving config: %v", err)
	}
	fmt.Printf("Config saved to %s\n", cfgPath)

	if token != "" {
		envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
		if err := writeEnvToken(envPath, token); err != nil {
			fatalf("Error writing %s: %v", envPath, err)
		}
		fmt.Printf("Server token saved to %s\n", envPath)
	}

	if err := os.MkdirAll(cfg.Scripts.Dir, 0o755); err != nil {
		fatalf("Error creating scripts dir: %v", err)
	}
	example := filepath.Join(cfg.Scripts.Dir, "example.json5")
	if _, err := os.Stat(example); os.IsNotExist(err) {
		if err := os.WriteFile(example, []byte(exampleScript), 0o644); err == nil {
			fmt.Printf("Example script written to %s\n", example)
		}
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  tabpilot doctor            check the browser connection")
	fmt.Println("  tabpilot run example       run the example script")
	fmt.Println("  tabpilot serve --ws        keep sessions alive for other processes")
}

// initWizard edits cfg in place and returns the server token to store, if any.
func initWizard(cfg *config.Config) (string, bool) {
	mode := "launch"
	if cfg.Browser.ControlURL != "" {
		mode = "connect"
	}
	defaultIdx := 0
	if mode == "connect" {
		defaultIdx = 1
	}
	mode, err := promptSelect("Browser · How should tabpilot reach Chrome?", []SelectOption[string]{
		{"Launch a browser when needed", "launch"},
		{"Connect to a running browser (--remote-debugging-port)", "connect"},
	}, defaultIdx)
	if err != nil {
		return "", false
	}

	switch mode {
	case "connect":
		def := cfg.Browser.ControlURL
		if def == "" {
			def = "http://127.0.0.1:9222"
		}
		u, err := promptString("Control URL", "ws:// endpoint or http://host:port", def)
		if err != nil {
			return "", false
		}
		cfg.Browser.ControlURL = strings.TrimSpace(u)
	default:
		cfg.Browser.ControlURL = ""
		if cfg.Browser.Headless, err = promptConfirm("Run the launched browser headless?", cfg.Browser.Headless); err != nil {
			return "", false
		}
	}

	if cfg.Browser.Stealth, err = promptConfirm("Hide automation fingerprints (stealth)?", cfg.Browser.Stealth); err != nil {
		return "", false
	}

	dir, err := promptString("Scripts directory", "", cfg.Scripts.Dir)
	if err != nil {
		return "", false
	}
	cfg.Scripts.Dir = config.ExpandHome(strings.TrimSpace(dir))

	needToken, err := promptConfirm("Require a token for `tabpilot serve --ws` clients?", true)
	if err != nil {
		return "", false
	}
	if !needToken {
		return "", true
	}
	return strings.ReplaceAll(uuid.NewString(), "-", ""), true
}

// writeEnvToken sets TABPILOT_TOKEN in the .env file at path, keeping the
// other entries.
func writeEnvToken(path, token string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		env = map[string]string{}
	}
	env["TABPILOT_TOKEN"] = token
	if err := godotenv.Write(env, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
