// Command gateway is the entry point that wires the Metrics Store, Load
// Balancer, channel/credential projection, Routing Pipeline, and HTTP
// surface together, and runs the background health-probe loop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/llmweaver/gateway/internal/adminauth"
	"github.com/llmweaver/gateway/internal/channelstore"
	"github.com/llmweaver/gateway/internal/config"
	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/httpapi"
	"github.com/llmweaver/gateway/internal/loadbalancer"
	"github.com/llmweaver/gateway/internal/logging"
	"github.com/llmweaver/gateway/internal/metrics"
	"github.com/llmweaver/gateway/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logging.Init(cfg.Debug)
	defer logging.Sync()

	db, err := openDB(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logging.SysLogf("failed to open database: %v", err)
		os.Exit(1)
	}

	metricsStore, err := metrics.NewStore(db, 500, 5*time.Second)
	if err != nil {
		logging.SysLogf("failed to build metrics store: %v", err)
		os.Exit(1)
	}
	metricsStore.Start()
	defer metricsStore.Stop()

	channels, err := channelstore.New(db)
	if err != nil {
		logging.SysLogf("failed to build channel store: %v", err)
		os.Exit(1)
	}

	lb := loadbalancer.New(metricsStore, loadbalancer.Config{
		WindowMinutes:          cfg.MetricsWindowMinutes,
		StickyTTL:              time.Duration(cfg.StickyTTLMinutes) * time.Minute,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		DefaultStrategy:        domain.Strategy(cfg.DefaultStrategy),
		StickyEnabled:          cfg.CacheTrackingEnabled,
		RedisURL:               cfg.RedisURL,
	})

	p := pipeline.New(channels, channels, lb, channels, metricsStore, pipeline.Config{
		UpstreamTimeout: cfg.UpstreamTimeout,
	})

	admin := adminauth.NewJWTAuthenticator(cfg.AdminJWTSecret)
	server := httpapi.New(p, lb, channels, channelstore.StaticCatalog{}, admin, cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runHealthProbeLoop(ctx, lb, channels, cfg.HealthCheckInterval)

	httpServer := &http.Server{
		Addr:    addr(),
		Handler: server.Engine,
	}

	go func() {
		logging.SysLogf("gateway listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.SysLogf("http server error: %v", err)
		}
	}()

	waitForShutdownSignal()
	logging.SysLog("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.SysLogf("graceful shutdown failed: %v", err)
	}
}

func addr() string {
	if v := os.Getenv("GATEWAY_LISTEN_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

func openDB(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
}

// runHealthProbeLoop periodically probes every active channel; the
// admin-triggered probe lives in internal/httpapi's health-check handlers.
func runHealthProbeLoop(ctx context.Context, lb *loadbalancer.LoadBalancer, channels *channelstore.Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := channels.ActiveChannels(ctx)
			if err != nil {
				logging.Warnf(ctx, "health probe loop: failed to load channels: %v", err)
				continue
			}
			lb.ProbeAll(ctx, active)
		}
	}
}

func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
