package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gridwatt/energytrade/internal/book"
	"github.com/gridwatt/energytrade/internal/engine"
	"github.com/gridwatt/energytrade/internal/events"
	"github.com/gridwatt/energytrade/internal/gateway"
	"github.com/gridwatt/energytrade/internal/history"
	"github.com/gridwatt/energytrade/internal/ledger"
	"github.com/gridwatt/energytrade/internal/server"
	"github.com/gridwatt/energytrade/internal/store"
	"github.com/gridwatt/energytrade/pkg/config"
	"github.com/gridwatt/energytrade/pkg/logger"
	"github.com/gridwatt/energytrade/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("ENERGYTRADE_CONFIG"), "YAML config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	kv, err := store.Open(cfg.Store.BadgerDir)
	if err != nil {
		logger.Errorf("open store: %v", err)
		os.Exit(1)
	}
	ldg, err := ledger.New(kv)
	if err != nil {
		logger.Errorf("load ledger: %v", err)
		os.Exit(1)
	}
	bk, err := book.New(kv)
	if err != nil {
		logger.Errorf("load book: %v", err)
		os.Exit(1)
	}
	hist, err := history.Open(cfg.Store.HistoryDB)
	if err != nil {
		logger.Errorf("open history: %v", err)
		os.Exit(1)
	}

	var gw gateway.ContractGateway
	if cfg.Gateway.DryRun {
		gw = gateway.DryRun{}
	} else {
		gw = gateway.NewRelayerClient(cfg.Gateway.URL, cfg.Gateway.Timeout)
	}

	bus := events.NewBus()
	eng := engine.New(ldg, bk, hist, gw, bus)
	srv := server.New(eng, bus)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) { _ = httpSrv.Shutdown(ctx) })
	mgr.OnShutdown(func(ctx context.Context) { _ = hist.Close() })
	mgr.OnShutdown(func(ctx context.Context) { _ = kv.Close() })

	go func() {
		logger.Infof("energytrade listening on %s", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.Shutdown(ctx)
}
