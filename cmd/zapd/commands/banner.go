package commands

import (
	"fmt"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/sym"
	"github.com/not-mt/zapd/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, cfg *config.Config, dbPath string) {
	// ANSI escape codes
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ███████  █████  ██████  ██████ \n")
	fmt.Printf("       ██  ██   ██ ██   ██ ██   ██\n")
	fmt.Printf("      ██   ███████ ██████  ██   ██\n")
	fmt.Printf("    ██     ██   ██ ██      ██   ██\n")
	fmt.Printf("   ███████ ██   ██ ██      ██████    %s%s%s\n\n", reset+yellow, sym.Surge, reset)

	authLine := "disabled"
	if cfg.Auth.Enabled {
		authLine = fmt.Sprintf("enabled (%d keys)", len(cfg.Auth.APIKeys))
	}

	fmt.Printf("%s%s┌─ zapd ──────────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, versionInfo.Version, versionInfo.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, versionInfo.BuildTime)
	fmt.Printf("%s│%s Verbosity: %s\n", green, reset, logger.LevelName(verbosity))
	fmt.Printf("%s│%s Database:  %s\n", green, reset, dbPath)
	fmt.Printf("%s│%s Listen:    %s:%d\n", green, reset, cfg.Server.Host, cfg.GetServerPort())
	fmt.Printf("%s│%s Workers:   %d\n", green, reset, cfg.Surge.Workers)
	fmt.Printf("%s│%s Auth:      %s\n", green, reset, authLine)
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s%s Zaps stream live at /api/v1/zaps/stream%s\n", yellow, bold, sym.Surge, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
