package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/upsrelay/internal/config"
	"github.com/nextlevelbuilder/upsrelay/internal/cron"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("upsrelay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid:\n    %s\n", strings.ReplaceAll(err.Error(), "\n", "\n    "))
	}

	fmt.Println()
	fmt.Println("  Telegram:")
	checkSecret("Token", cfg.Telegram.Token)
	fmt.Printf("    %-12s %v\n", "Creators:", cfg.CreatorIDs())
	if cfg.Telegram.Proxy != "" {
		fmt.Printf("    %-12s %s\n", "Proxy:", cfg.Telegram.Proxy)
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-12s %s\n", "Mode:", cfg.Database.Mode)
	checkStore(cfg)

	fmt.Println()
	fmt.Println("  Event sources:")
	fmt.Printf("    %-12s %s:%d\n", "Webhook:", cfg.Gateway.Host, cfg.Gateway.Port)
	checkSecret("Secret", cfg.Gateway.WebhookSecret)
	switch {
	case cfg.IMAP.Host == "":
		fmt.Printf("    %-12s disabled\n", "IMAP:")
	case cfg.IMAP.Enabled:
		fmt.Printf("    %-12s %s@%s:%d (autostart)\n", "IMAP:", cfg.IMAP.User, cfg.IMAP.Host, cfg.IMAP.Port)
	default:
		fmt.Printf("    %-12s %s@%s:%d (start with /startimapservice)\n", "IMAP:", cfg.IMAP.User, cfg.IMAP.Host, cfg.IMAP.Port)
	}

	fmt.Println()
	fmt.Println("  Schedule:")
	checkDigest(cfg.DigestSchedule())
	fmt.Printf("    %-12s %s\n", "Timezone:", cfg.Location())

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := "****"
	if len(value) > 8 {
		masked = value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkStore(cfg *config.Config) {
	start := time.Now()
	stores, err := openStores(cfg)
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Store:", err)
		return
	}
	defer stores.Close()

	devices, err := stores.Devices.ListDevices(context.Background())
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Store:", err)
		return
	}
	groups, err := stores.Groups.ListGroups(context.Background())
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Store:", err)
		return
	}
	fmt.Printf("    %-12s OK (%d devices, %d groups, %s)\n", "Store:", len(devices), len(groups),
		time.Since(start).Round(time.Millisecond))
}

func checkDigest(expr string) {
	if expr == "" {
		fmt.Printf("    %-12s disabled\n", "Digest:")
		return
	}
	svc, err := cron.NewService("digest", expr, nil)
	if err != nil {
		fmt.Printf("    %-12s INVALID %q (%s)\n", "Digest:", expr, err)
		return
	}
	fmt.Printf("    %-12s %s (next %s)\n", "Digest:", expr, svc.NextRun().Format(time.RFC3339))
}
