package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gmailbulker/internal/config"
	"gmailbulker/internal/health"
	"gmailbulker/internal/logger"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/relay"
	httptransport "gmailbulker/internal/transport/http"
	"gmailbulker/internal/websocket"
)

const version = "1.0.5"

// main 启动特权中继：HTTP 消息入口、WebSocket 入口与后台下载。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log, "relay"))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	log.Info("starting gmail bulker relay",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("relay error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("relay exited cleanly")
	_ = log.Sync()
}

// newAlertManager 注册中继的告警规则，告警写入日志
func newAlertManager(stack *relay.Stack, workers int, log *zap.Logger) *monitoring.AlertManager {
	am := monitoring.NewAlertManager(log)
	am.AddReceiver(monitoring.NewLogAlertReceiver(log))
	am.AddRule(monitoring.HighMemoryUsageRule(512))
	am.AddRule(monitoring.StoreUnavailableRule(stack.Store.Health))
	am.AddRule(monitoring.DownloadBacklogRule(stack.Pool.Active, workers))
	return am
}

// run 装配中继并运行到 ctx 取消
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	metrics := monitoring.NewMetrics()
	fs := afero.NewOsFs()

	stack, err := relay.NewStack(cfg, fs, metrics, log)
	if err != nil {
		return fmt.Errorf("initialize relay: %w", err)
	}
	defer stack.Close()

	healthChecker := health.NewHealthChecker(health.Options{
		Store:      stack.Store,
		Fs:         fs,
		Dir:        cfg.Download.Dir,
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  "gmailbulker",
		Logger:     log,
	})
	alerts := newAlertManager(stack, cfg.Download.Workers, log)
	hub := websocket.NewHub(stack.Router, cfg.CORS.AllowedOrigins, log)

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: httptransport.NewRouter(httptransport.RouterDependencies{
			Config:       cfg,
			Relay:        stack.Router,
			Downloads:    stack.Downloader,
			WebSocketHub: hub,
			Health:       healthChecker,
			Metrics:      metrics,
			Logger:       log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// 抓取大附件时响应体较大
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("relay listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		alerts.StartMonitoring(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down relay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
