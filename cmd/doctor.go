package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/history"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/pkg/browser"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check browser connectivity and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tabpilot doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Browser:")
	if cfg.Browser.ControlURL != "" {
		fmt.Printf("    %-12s %s\n", "Control URL:", cfg.Browser.ControlURL)
		checkBrowser(cfg)
	} else {
		fmt.Printf("    %-12s launch on demand (headless=%v)\n", "Mode:", cfg.Browser.Headless)
		if cfg.Browser.Bin != "" {
			fmt.Printf("    %-12s %s\n", "Binary:", cfg.Browser.Bin)
		} else {
			checkBinary("google-chrome", "chromium", "chromium-browser")
		}
	}

	fmt.Println()
	fmt.Println("  Storage:")
	checkScripts(cfg.Scripts.Dir)
	checkHistory(cfg.History.Path)
	checkDir("Artifacts:", cfg.Artifacts.Dir)
	if cfg.Clickable.Path != "" {
		checkClickable(cfg.Clickable.Path)
	} else {
		fmt.Printf("    %-12s built-in defaults\n", "Clickable:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkBrowser(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := browser.New(browser.WithControlURL(cfg.Browser.ControlURL))
	if err := m.Start(ctx); err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	st := m.Status(ctx)
	fmt.Printf("    %-12s %s, protocol %s, %d tabs\n", "Status:", orDash(st.Product), orDash(st.ProtocolVersion), st.Tabs)
}

func checkBinary(names ...string) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			fmt.Printf("    %-12s %s\n", "Binary:", path)
			return
		}
	}
	fmt.Printf("    %-12s not on PATH (rod downloads a browser on first launch)\n", "Binary:")
}

func checkScripts(dir string) {
	store, err := script.NewStore(dir, 1)
	if err != nil {
		fmt.Printf("    %-12s %s (%s)\n", "Scripts:", dir, err)
		return
	}
	infos, err := store.List()
	if err != nil {
		fmt.Printf("    %-12s %s (%s)\n", "Scripts:", dir, err)
		return
	}
	fmt.Printf("    %-12s %s (%d scripts)\n", "Scripts:", dir, len(infos))
}

func checkHistory(path string) {
	h, err := history.Open(path)
	if err != nil {
		fmt.Printf("    %-12s %s (ERROR: %s)\n", "History:", path, err)
		return
	}
	defer h.Close()
	fmt.Printf("    %-12s %s (OK)\n", "History:", path)
}

func checkDir(label, dir string) {
	if _, err := os.Stat(dir); err != nil {
		fmt.Printf("    %-12s %s (created on first use)\n", label, dir)
		return
	}
	fmt.Printf("    %-12s %s (OK)\n", label, dir)
}

func checkClickable(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("    %-12s %s (ERROR: %s)\n", "Clickable:", path, err)
		return
	}
	if _, err := config.ParseClickable(path, data); err != nil {
		fmt.Printf("    %-12s %s (INVALID: %s)\n", "Clickable:", path, err)
		return
	}
	fmt.Printf("    %-12s %s (OK)\n", "Clickable:", path)
}
