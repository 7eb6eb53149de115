package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	"github.com/stefanopk/ladderbot/internal/broker"
	"github.com/stefanopk/ladderbot/internal/broker/bybit"
	"github.com/stefanopk/ladderbot/internal/config"
	"github.com/stefanopk/ladderbot/internal/logger"
	"github.com/stefanopk/ladderbot/internal/manager"
	"github.com/stefanopk/ladderbot/internal/monitoring"
	"github.com/stefanopk/ladderbot/internal/notifications"
	"github.com/stefanopk/ladderbot/internal/risk"
	"github.com/stefanopk/ladderbot/internal/session"
	"github.com/stefanopk/ladderbot/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., btc-long.json)")
		envFile    = flag.String("env", ".env", "Environment file path (default: .env)")
		journal    = flag.String("journal", "journal/trades.xlsx", "Excel trade journal path")
		demo       = flag.Bool("demo", false, "Force demo trading environment regardless of config")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *demo {
		cfg.Broker.Demo = true
	}

	if cfg.Broker.Exchange != "bybit" {
		log.Fatalf("Exchange %q is not supported for live trading, use the paper command for simulation", cfg.Broker.Exchange)
	}

	bybitConfig := bybit.Config{
		APIKey:    os.Getenv("BYBIT_API_KEY"),
		APISecret: os.Getenv("BYBIT_API_SECRET"),
		Testnet:   cfg.Broker.Testnet,
		Demo:      cfg.Broker.Demo,
		Category:  cfg.Broker.Category,
	}
	if bybitConfig.APIKey == "" || bybitConfig.APISecret == "" {
		log.Fatal("Please set BYBIT_API_KEY and BYBIT_API_SECRET in .env file or environment variables")
	}

	venue := bybit.New(bybitConfig)
	guarded := broker.NewGuarded(venue)

	riskUnit := cfg.Trade.RiskUnit
	if riskUnit <= 0 {
		if riskUnit, err = risk.RiskUnitFromATR(cfg.Trade.ATR, cfg.Trade.ATRFactor); err != nil {
			log.Fatalf("Failed to derive risk unit: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shares := cfg.Trade.Shares
	if shares <= 0 {
		quote, err := guarded.GetLastPrice(ctx, cfg.Trade.Symbol)
		if err != nil {
			log.Fatalf("Failed to fetch %s price for position sizing: %v", cfg.Trade.Symbol, err)
		}
		if shares, err = risk.SharesForRisk(cfg.Trade.AccountValue, cfg.Trade.RiskPct, quote, riskUnit); err != nil {
			log.Fatalf("Failed to size position: %v", err)
		}
	}

	sessionLog, err := logger.NewLogger(cfg.Trade.Symbol)
	if err != nil {
		log.Fatalf("Failed to create session log: %v", err)
	}
	defer sessionLog.Close()

	var health *monitoring.HealthChecker
	if cfg.Monitoring != nil && cfg.Monitoring.Enabled {
		health = startMonitoring(cfg.Monitoring.ListenAddr)
		health.SetConnected(true)
	}

	notifier := buildNotifier(cfg)

	printTradePlan(cfg, venue, shares, riskUnit, sessionLog.GetLogPath())

	sessionConfig := session.Config{
		Symbol:       cfg.Trade.Symbol,
		Direction:    cfg.Direction(),
		Shares:       shares,
		RiskUnit:     riskUnit,
		Plans:        cfg.Ladder.Stages,
		EntryTimeout: cfg.Session.EntryTimeoutDuration(),
		Manager:      managerConfig(cfg),
	}
	if health != nil {
		sessionConfig.OnEvent = func(ev manager.StatusEvent) {
			health.RecordTick(ev.Price, string(ev.State))
		}
	}

	outcome, err := session.New(sessionConfig, guarded, sessionLog, notifier).Run(ctx)
	if err != nil {
		log.Fatalf("Session failed: %v", err)
	}

	reporting.PrintOutcome(outcome)

	if *journal != "" {
		if err := reporting.AppendToJournal(outcome, *journal); err != nil {
			log.Printf("Warning: failed to update trade journal: %v", err)
		} else {
			fmt.Printf("📗 Journal updated: %s\n", *journal)
		}
	}
}

func managerConfig(cfg *config.Config) manager.Config {
	return manager.Config{
		Instrument:       cfg.Trade.Symbol,
		TickInterval:     cfg.Session.TickIntervalDuration(),
		ReconcileEvery:   cfg.Session.ReconcileEvery,
		DisplayEvery:     cfg.Session.DisplayEvery,
		StopConfirmDelay: cfg.Session.StopConfirmDelayDuration(),
	}
}

func buildNotifier(cfg *config.Config) notifications.Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chat := os.Getenv("TELEGRAM_CHAT_ID")
	if cfg.Notifications != nil {
		if cfg.Notifications.TelegramToken != "" {
			token = cfg.Notifications.TelegramToken
		}
		if cfg.Notifications.TelegramChat != "" {
			chat = cfg.Notifications.TelegramChat
		}
		if !cfg.Notifications.Enabled {
			return notifications.Noop{}
		}
	}
	if token == "" || chat == "" {
		return notifications.Noop{}
	}
	return notifications.NewTelegramNotifier(token, chat)
}

func startMonitoring(addr string) *monitoring.HealthChecker {
	health := monitoring.NewHealthChecker()

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", health)

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Warning: monitoring server stopped: %v", err)
		}
	}()
	fmt.Printf("📡 Monitoring on %s (/metrics, /health)\n", addr)
	return health
}

func printTradePlan(cfg *config.Config, venue *bybit.Broker, shares int64, riskUnit float64, logPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADE PLAN")
	t.SetStyle(table.StyleRounded)

	stages := make([]string, 0, len(cfg.Ladder.Stages))
	for _, p := range cfg.Ladder.Stages {
		stages = append(stages, fmt.Sprintf("%.0f%%@%.1fR", p.Fraction*100, p.RMultiple))
	}

	t.AppendRows([]table.Row{
		{"📊 Symbol", cfg.Trade.Symbol},
		{"🧭 Direction", cfg.Direction().String()},
		{"📦 Shares", shares},
		{"📏 Risk Unit", fmt.Sprintf("$%.2f", riskUnit)},
		{"🪜 Exit Ladder", strings.Join(stages, ", ")},
		{"🔧 Environment", venue.Environment()},
		{"📄 Session Log", logPath},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
