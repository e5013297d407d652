package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"basis-arb-bot/internal/alerts"
	"basis-arb-bot/internal/app"
	"basis-arb-bot/internal/config"
	"basis-arb-bot/internal/feed"
	"basis-arb-bot/internal/logging"
	"basis-arb-bot/internal/market"
	"basis-arb-bot/internal/state"
	"basis-arb-bot/internal/state/sqlite"
	"basis-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

const (
	defaultVerifyEnvFile = ".env"
	defaultVerifyTimeout = 30 * time.Second
	defaultVerifyTicks   = 5
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	ticks := flag.Int("ticks", defaultVerifyTicks, "number of normalized ticks to print before exiting")
	timeout := flag.Duration("timeout", defaultVerifyTimeout, "how long to wait for feed ticks")
	message := flag.String("telegram", "", "send this message through the configured telegram chat and exit")
	position := flag.Bool("position", false, "print the persisted position snapshot and exit")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	switch {
	case *position:
		printPosition(cfg)
	case strings.TrimSpace(*message) != "":
		sendTelegram(cfg, log, *message)
	default:
		streamTicks(cfg, log, *ticks, *timeout)
	}
}

func printPosition(cfg *config.Config) {
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()
	snap, ok, err := state.LoadPosition(context.Background(), store)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fmt.Println("no persisted position")
		return
	}
	pretty, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("position snapshot:\n%s\n", string(pretty))
}

func sendTelegram(cfg *config.Config, log *zap.Logger, message string) {
	if !cfg.Telegram.Enabled {
		fatal(errors.New("telegram.enabled is false"))
	}
	client := alerts.NewTelegram(cfg.Telegram, log)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Send(ctx, message); err != nil {
		fatal(err)
	}
	fmt.Println("telegram message sent")
}

func streamTicks(cfg *config.Config, log *zap.Logger, limit int, timeout time.Duration) {
	if err := app.ResolveApprovalKey(context.Background(), cfg, log); err != nil {
		fatal(err)
	}
	if strings.TrimSpace(cfg.Feed.ApprovalKey) == "" {
		fatal(errors.New("KIS_APPROVAL_KEY or KIS_APP_KEY/KIS_APP_SECRET is required"))
	}
	params, err := strategy.NewParams(cfg.Strategy, cfg.Risk)
	if err != nil {
		fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := feed.New(cfg.Feed, log)
	for _, sub := range feed.Subscriptions(cfg.Feed, cfg.Strategy) {
		if err := client.Subscribe(ctx, sub); err != nil {
			fatal(err)
		}
		fmt.Printf("subscribed: tr_id=%s tr_key=%s\n", sub.TrID, sub.TrKey)
	}

	seen := 0
	err = client.Run(ctx, func(msg market.RawMessage) {
		upd, ok := market.Normalize(msg, params.Fields, time.Now())
		if !ok {
			fmt.Printf("unusable message: tr_id=%s rows=%d\n", msg.TrID, len(msg.Rows))
			return
		}
		seen++
		fmt.Printf("tick %d: kind=%s value=%g when=%s\n", seen, upd.Kind, upd.Value, upd.When)
		if seen >= limit {
			cancel()
		}
	})
	if seen == 0 {
		if err == nil {
			err = errors.New("no ticks received")
		}
		fatal(fmt.Errorf("no ticks before timeout: %w", err))
	}
	fmt.Printf("received %d ticks\n", seen)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
