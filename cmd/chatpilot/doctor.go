package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"chatpilot/internal/config"
	"chatpilot/internal/store"

	"github.com/spf13/cobra"
)

// chromeBinaries are the executable names chromedp's allocator looks for.
var chromeBinaries = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"google-chrome-beta",
	"google-chrome-unstable",
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your chatpilot installation",
		Long: `Verifies that the configuration, browser profile, Chrome binary, database
and selector profile are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("chatpilot doctor v%s\n", version)
			fmt.Printf("----------------------------------------\n\n")

			passed, warned, failed := 0, 0, 0

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'chatpilot init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			if info, err := os.Stat(cfg.Browser.ProfileDir); err != nil {
				printWarn("Browser profile", fmt.Sprintf("not found: %s (run 'chatpilot login')", cfg.Browser.ProfileDir))
				warned++
			} else if !info.IsDir() {
				printFail("Browser profile", fmt.Sprintf("not a directory: %s", cfg.Browser.ProfileDir))
				failed++
			} else {
				printPass("Browser profile", cfg.Browser.ProfileDir)
				passed++
			}

			if bin, err := findChrome(); err != nil {
				printFail("Chrome binary", err.Error())
				failed++
			} else {
				printPass("Chrome binary", bin)
				passed++
			}

			if err := checkDatabase(cfg.Links.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Links.DBPath)
				passed++
			}

			_, err = loadSelectors(cfg)
			switch {
			case err != nil:
				printFail("Selectors", err.Error())
				failed++
			case cfg.Browser.SelectorsFile == "":
				printPass("Selectors", "built-in WhatsApp Web profile")
				passed++
			default:
				printPass("Selectors", cfg.Browser.SelectorsFile)
				passed++
			}

			if cfg.Browser.FilePicker == "command" {
				if _, err := exec.LookPath("sh"); err != nil {
					printFail("File picker", "command picker needs sh in PATH")
					failed++
				} else {
					printPass("File picker", "command")
					passed++
				}
			}

			if cfg.Notify.Telegram.Enabled {
				printPass("Telegram notify", fmt.Sprintf("chat %d", cfg.Notify.Telegram.ChatID))
				passed++
			} else {
				printWarn("Telegram notify", "disabled; security challenges are only logged")
				warned++
			}

			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					printWarn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
					warned++
				} else {
					printPass("Metrics listen", cfg.Metrics.Listen+" available")
					passed++
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n----------------------------------------\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before sending.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nchatpilot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed.\n")
			}
			return nil
		},
	}
}

func findChrome() (string, error) {
	for _, name := range chromeBinaries {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("none of %v found in PATH", chromeBinaries)
}

// checkDatabase opens the store (running migrations) and pings it.
func checkDatabase(dbPath string) error {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
