package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/escape23/crypto-dashboard/internal/api"
	"github.com/escape23/crypto-dashboard/internal/config"
	"github.com/escape23/crypto-dashboard/internal/dashboard"
	"github.com/escape23/crypto-dashboard/internal/market"
	"github.com/escape23/crypto-dashboard/internal/models"
	"github.com/escape23/crypto-dashboard/internal/realtime"
	"github.com/escape23/crypto-dashboard/internal/session"
	"github.com/escape23/crypto-dashboard/internal/storage"
	"github.com/escape23/crypto-dashboard/internal/stream"
	"github.com/escape23/crypto-dashboard/internal/watchlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	var (
		addr   = flag.String("addr", cfg.Addr, "server listen address")
		dbPath = flag.String("db", cfg.DBPath, "sqlite database file")
	)
	flag.Parse()

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		slog.Error("logger setup failed", "error", err)
		os.Exit(1)
	}

	sqlDB, err := storage.Open(*dbPath)
	if err != nil {
		slog.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	kv := storage.NewKV(sqlDB)
	watch := watchlist.NewStore(kv)
	sess := session.New(kv, models.Currency(cfg.DefaultCurrency), cfg.DefaultWindow)
	client := market.NewClient(cfg.MarketBaseURL)
	hub := realtime.NewHub()
	composer := dashboard.New(client, watch, sess, hub)
	apiServer := api.NewServer(composer, hub)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	composer.Start(ctx)

	if cfg.StreamURL != "" {
		feed := stream.New(cfg.StreamURL, composer.ApplyPriceUpdates)
		go feed.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("crypto dashboard listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
