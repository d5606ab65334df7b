package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/bindery/internal/audit"
	"github.com/mattjoyce/bindery/internal/catalog"
	"github.com/mattjoyce/bindery/internal/config"
	"github.com/mattjoyce/bindery/internal/dispatch"
	"github.com/mattjoyce/bindery/internal/fulfill"
	"github.com/mattjoyce/bindery/internal/httpapi"
	"github.com/mattjoyce/bindery/internal/log"
	"github.com/mattjoyce/bindery/internal/mail"
	"github.com/mattjoyce/bindery/internal/metrics"
	"github.com/mattjoyce/bindery/internal/platform"
	"github.com/mattjoyce/bindery/internal/store/sqlite"
	"github.com/mattjoyce/bindery/internal/token"
	"github.com/mattjoyce/bindery/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultConfigPath = "./config/config.yaml"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "platform":
		return runPlatformNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "watch":
		return runWatch(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func runSystemNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printSystemNounHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printConfigNounHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "help":
		printConfigNounHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runPlatformNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printPlatformNounHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "exchange-token":
		if hasHelpFlag(actionArgs) {
			printPlatformExchangeTokenHelp()
			return 0
		}
		return runPlatformExchangeToken(actionArgs)
	case "register-webhook":
		if hasHelpFlag(actionArgs) {
			printPlatformRegisterWebhookHelp()
			return 0
		}
		return runPlatformRegisterWebhook(actionArgs)
	case "help":
		printPlatformNounHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown platform action: %s\n", action)
		return 1
	}
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("bindery starting", "version", version, "config", *configPath)

	metrics.Register()

	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	cat, err := catalog.Load(cfg.Delivery.CatalogPath)
	if err != nil {
		logger.Error("failed to load catalog", "path", cfg.Delivery.CatalogPath, "error", err)
		return 1
	}
	logger.Info("catalog loaded", "path", cfg.Delivery.CatalogPath, "products", cat.Len())

	orders := sqlite.NewOrderStore(db)
	tokens := sqlite.NewTokenStore(db)
	auditLog := audit.New(sqlite.NewAuditStore(db, cfg.Audit.Retention))

	ledger := token.NewLedger(tokens, cfg.Delivery.SingleUse())
	mailer := mail.New(cfg.Email)
	emails := dispatch.New(mailer, auditLog)
	orch := fulfill.New(cfg, orders, ledger, cat, auditLog, emails)
	server := httpapi.New(cfg, orch, auditLog)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := emails.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	logger.Info("bindery running (press Ctrl+C to stop)",
		"listen", cfg.Service.Listen,
		"email_mode", cfg.Email.Mode,
		"single_use", cfg.Delivery.SingleUse())

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("bindery stopped")
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config check failed: %v\n", err)
		return 1
	}

	cat, err := catalog.Load(cfg.Delivery.CatalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Catalog check failed: %v\n", err)
		return 1
	}

	fmt.Printf("Config OK: %s\n", *configPath)
	fmt.Printf("  listen:     %s\n", cfg.Service.Listen)
	fmt.Printf("  base_url:   %s\n", cfg.Service.BaseURL)
	fmt.Printf("  state:      %s\n", cfg.State.Path)
	fmt.Printf("  ebooks_dir: %s\n", cfg.Delivery.EbooksDir)
	fmt.Printf("  catalog:    %s (%d products)\n", cfg.Delivery.CatalogPath, cat.Len())
	fmt.Printf("  email:      %s\n", cfg.Email.Mode)
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configDir := fs.String("config-dir", "./config", "Path to configuration directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	manifest, err := config.GenerateChecksums(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate checksums: %v\n", err)
		return 1
	}

	fmt.Printf("Locked %d file(s) in %s:\n", len(manifest.Hashes), *configDir)
	for name, hash := range manifest.Hashes {
		fmt.Printf("  %s  %s\n", hash[:16], name)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:3007", "Service base URL")
	accessKey := fs.String("key", os.Getenv("BINDERY_DASHBOARD_KEY"), "Dashboard access key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(strings.TrimRight(*baseURL, "/"), *accessKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runPlatformExchangeToken(args []string) int {
	fs := flag.NewFlagSet("exchange-token", flag.ExitOnError)
	shop := fs.String("shop", os.Getenv("SHOPIFY_SHOP"), "Shop domain (example.myshopify.com)")
	clientID := fs.String("client-id", os.Getenv("SHOPIFY_API_KEY"), "App client id")
	clientSecret := fs.String("client-secret", os.Getenv("SHOPIFY_API_SECRET"), "App client secret")
	scopes := fs.String("scopes", "read_orders", "Requested access scopes")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *shop == "" || *clientID == "" || *clientSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: --shop, --client-id, and --client-secret are required (or SHOPIFY_* env vars).")
		return 1
	}

	client := platform.NewClient(*shop)
	accessToken, err := client.AccessToken(context.Background(), *clientID, *clientSecret, *scopes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get access token: %v\n", err)
		return 1
	}

	fmt.Printf("Access token: %s\n", accessToken)
	return 0
}

func runPlatformRegisterWebhook(args []string) int {
	fs := flag.NewFlagSet("register-webhook", flag.ExitOnError)
	shop := fs.String("shop", os.Getenv("SHOPIFY_SHOP"), "Shop domain (example.myshopify.com)")
	accessToken := fs.String("access-token", os.Getenv("SHOPIFY_ACCESS_TOKEN"), "Admin API access token")
	baseURL := fs.String("base-url", os.Getenv("BASE_URL"), "Public base URL of this service")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *shop == "" || *accessToken == "" || *baseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: --shop, --access-token, and --base-url are required (or env vars).")
		return 1
	}

	client := platform.NewClient(*shop)
	callbackURL := strings.TrimRight(*baseURL, "/") + "/webhooks/orders_paid"
	id, err := client.RegisterWebhook(context.Background(), *accessToken, callbackURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register webhook: %v\n", err)
		return 1
	}

	fmt.Printf("Webhook registered: %s -> %s\n", id, callbackURL)
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    gitCommit,
		BuildTime: buildDate,
	}

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("bindery %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

// --- HELP ---

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if isHelpToken(a) {
			return true
		}
	}
	return false
}

func isHelpToken(arg string) bool {
	return arg == "help" || arg == "--help" || arg == "-h"
}

func printUsage() {
	fmt.Print(`bindery - Ebook delivery service

Usage:
  bindery <noun> <action> [flags]

Core Resources (Nouns):
  system    Service lifecycle
  config    Configuration and integrity
  platform  Commerce platform bootstrap

System Commands:
  system start           Start the delivery service in foreground
  system watch           Live audit event monitoring TUI

Config Commands:
  config check           Validate configuration and catalog
  config lock            Authorize current state (update integrity hashes)

Platform Commands:
  platform exchange-token    Obtain an Admin API access token
  platform register-webhook  Subscribe the orders_paid webhook

General:
  --version              Show version information
  version                Show version information
  help                   Show this help message

Use 'bindery <noun> help' for resource-specific flags.
`)
}

func printSystemNounHelp() {
	fmt.Println("Usage: bindery system <start|watch> [flags]")
}

func printConfigNounHelp() {
	fmt.Println("Usage: bindery config <check|lock> [flags]")
}

func printPlatformNounHelp() {
	fmt.Println("Usage: bindery platform <exchange-token|register-webhook> [flags]")
}

func printSystemStartHelp() {
	fmt.Println("Usage: bindery system start [--config PATH]")
	fmt.Println("Start the delivery service: webhook endpoint, download redemption, admin dashboard.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: bindery system watch [flags]")
	fmt.Println()
	fmt.Println("Live audit event monitoring TUI.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --url URL    Service base URL (default: http://localhost:3007)")
	fmt.Println("  --key KEY    Dashboard access key (or BINDERY_DASHBOARD_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C    Quit")
	fmt.Println("  r            Refresh now")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: bindery config check [--config PATH]")
	fmt.Println("Validate configuration syntax, secrets, catalog, and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: bindery config lock [--config-dir PATH]")
	fmt.Println("Authorize current configuration state by regenerating scope file integrity hashes.")
}

func printPlatformExchangeTokenHelp() {
	fmt.Println("Usage: bindery platform exchange-token --shop DOMAIN --client-id ID --client-secret SECRET [--scopes read_orders]")
}

func printPlatformRegisterWebhookHelp() {
	fmt.Println("Usage: bindery platform register-webhook --shop DOMAIN --access-token TOKEN --base-url URL")
}
