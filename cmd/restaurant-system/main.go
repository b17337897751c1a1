package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/config"
	"restaurant-pos/internal/microservices/notificator"
	"restaurant-pos/internal/microservices/pos"
	"restaurant-pos/internal/microservices/pos/auth"
)

const modes = "pos-service | notification-subscriber | issue-token"

func main() {
	mode := flag.String("mode", "", modes)
	cfgPath := flag.String("config", "config.yaml", "path to the configuration file")
	port := flag.Int("port", 0, "pos-service: http port (overrides config)")
	staffID := flag.String("staff-id", "", "issue-token: staff member the token identifies")
	role := flag.String("role", auth.RoleCashier, "issue-token: cashier | server | kitchen | manager")
	flag.Parse()

	lg := logger.New("bootstrap")

	path := *cfgPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !flagSet("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}
	if *port != 0 {
		cfg.POS.Port = *port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "pos-service":
		if err := pos.Run(ctx, cfg, logger.New("pos-service")); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		lg.Info("service_started", map[string]any{"service": "notification-subscriber"})
		if err := notificator.Start(ctx, cfg, logger.New("notification-subscriber")); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "issue-token":
		tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
		token, err := tokens.Issue(*staffID, *role, time.Now().UTC())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Println(token)
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: "+modes)
		os.Exit(2)
	}
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
