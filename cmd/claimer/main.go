package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freebies_claimer/internal/browserlogin"
	"freebies_claimer/internal/claimer"
	"freebies_claimer/internal/config"
	"freebies_claimer/internal/httpapi"
	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
	"freebies_claimer/internal/notify"
	"freebies_claimer/internal/promo"
	"freebies_claimer/internal/provider/standard"
	"freebies_claimer/internal/session"
	"freebies_claimer/internal/store/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [email password remember(0/1) secret cookiesJSON]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	bus := logbus.New(500)
	logger, err := logbus.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	stopLog := logbus.AttachZap(bus, logger)
	defer stopLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		bus.Error("open ledger", map[string]any{"error": err.Error()})
		return 1
	}
	defer store.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Email.Enabled {
		email := notify.NewEmailNotifier(cfg.Notify.Email, bus)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = email.Close(closeCtx)
		}()
		notifier = email
	}

	prov := standard.New(cfg.Provider, cfg.Proxy, cfg.Limits, bus)
	est := session.New(prov, browserlogin.New(bus), model.NewCookieStore(cfg.Options.Cookies), cfg.Options.LoginOptions(), bus)
	est.RefreshBeforeFallback = cfg.TwoFactor.RefreshEnabled()

	runner := claimer.New(claimer.Options{
		Establisher: est,
		Resolver:    promo.NewResolver(cfg.Limits.ResolveConcurrency, bus),
		Ledger:      store,
		Notifier:    notifier,
		Bus:         bus,
		Locale:      cfg.Locale,
	})

	if cfg.Server.Addr != "" {
		api := httpapi.New(httpapi.Options{Cfg: cfg, Bus: bus, State: runner, Claims: store})
		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				bus.Error("http server error", map[string]any{"error": err.Error()})
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		bus.Info("status api listening", map[string]any{"addr": cfg.Server.Addr})
	}

	bus.Info("claimer starting", map[string]any{
		"provider": prov.Name(),
		"accounts": len(cfg.Accounts),
		"loop":     cfg.Loop,
	})
	err = runner.Run(ctx, claimer.Plan{
		Accounts: cfg.Accounts,
		Loop:     cfg.Loop,
		Delay:    cfg.DelayDuration(),
	})
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		bus.Info("shutdown signal received", nil)
		return 0
	default:
		bus.Error(err.Error(), nil)
		return 1
	}
}

func loadConfig(path string, args []string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || len(args) == 0 {
			return config.Config{}, err
		}
		// Positional arguments alone are enough to run one account.
		cfg, err = config.Parse(nil)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.ApplyArgs(args); err != nil {
		return config.Config{}, err
	}
	if err := cfg.RequireAccounts(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
