package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/sharpness-board/internal/analysis"
	appcfg "github.com/park285/sharpness-board/internal/config"
	"github.com/park285/sharpness-board/internal/httpapi"
	"github.com/park285/sharpness-board/internal/msgcat"
	"github.com/park285/sharpness-board/internal/obslog"
	"github.com/park285/sharpness-board/internal/session"
	"github.com/park285/sharpness-board/internal/viewbus"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message_catalog_load_failed", zap.Error(err))
	}

	var busOpts []viewbus.Option
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		mirror, err := viewbus.DialRedis(ctx, cfg.RedisURL, logger.Named("mirror"),
			viewbus.WithPrefix(cfg.RedisKeyPrefix),
			viewbus.WithLatestTTL(cfg.RedisLatestTTL),
			viewbus.WithQueueSize(cfg.RedisQueueSize),
		)
		cancel()
		if err != nil {
			logger.Fatal("view_mirror_init_failed", zap.Error(err))
		}
		busOpts = append(busOpts, viewbus.WithMirror(mirror))
	}
	bus := viewbus.New(logger.Named("viewbus"), busOpts...)

	client := analysis.NewClient(cfg.AnalysisBaseURL,
		analysis.WithTimeout(cfg.AnalysisTimeout),
		analysis.WithMaxConnsPerHost(cfg.AnalysisMaxConns),
	)
	hub := session.NewHub(session.HubConfig{
		Analyzer:      client,
		Policy:        cfg.AnalysisStalePolicy,
		Messages:      msgs,
		Publisher:     bus,
		Logger:        logger.Named("session"),
		IdleTTL:       cfg.SessionIdleTTL,
		SweepInterval: cfg.SweepInterval,
	})

	api := httpapi.New(hub, bus, msgs, logger.Named("http"),
		httpapi.WithOriginPatterns(cfg.WSOriginPatterns),
		httpapi.WithPingInterval(cfg.WSPingInterval),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http_listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("analysis_base_url", cfg.AnalysisBaseURL),
			zap.String("stale_policy", string(cfg.AnalysisStalePolicy)),
			zap.Bool("redis_mirror", cfg.RedisURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_serve_failed", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	hub.Close()
	if err := bus.Close(); err != nil {
		logger.Warn("viewbus_close_error", zap.Error(err))
	}
}
