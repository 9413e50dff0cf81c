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

	"github.com/daemonp/domologica2mqtt/internal/cache"
	"github.com/daemonp/domologica2mqtt/internal/config"
	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/gateway"
	"github.com/daemonp/domologica2mqtt/internal/homeassistant"
	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/metrics"
	"github.com/daemonp/domologica2mqtt/internal/mqtt"
)

func main() {
	configFile := flag.String("config", "config.yml", "Path to configuration file")
	check := flag.Bool("check", false, "Poll the gateway once, list its elements and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	logger := log.NewLogger(cfg.Log)

	client := domologica.NewClient(domologica.ClientConfig{
		BaseURL:             cfg.Domologica.BaseURL,
		Username:            cfg.Domologica.Username,
		Password:            cfg.Domologica.Password,
		Timeout:             cfg.Domologica.TimeoutDuration(),
		MetadataConcurrency: cfg.Domologica.MetadataConcurrency,
	}, logger.Source("domologica"))

	opts := gatewayOptions(cfg)
	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		m = metrics.New()
		opts.Metrics = m
	}
	gw := gateway.New(client, opts, logger)

	if *check {
		os.Exit(runCheck(client, gw, cfg))
	}

	// Load cache if enabled
	var store *cache.Store
	if cfg.Cache {
		store, err = cache.NewStore("")
		if err != nil {
			logger.Warning("Cache disabled: %v", err)
		} else if cacheData, err := store.Load(); err != nil {
			logger.Warning("Failed to load cache: %v", err)
		} else if cacheData != nil {
			gw.SeedMetadata(cacheData.Metadata)
			logger.Info("Loaded metadata for %d elements from cache", len(cacheData.Metadata))
		}
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := startGateway(ctx, gw, cfg.Domologica.ScanIntervalDuration(), logger); err != nil {
		logger.Info("Interrupted before the gateway became ready")
		gw.Stop()
		os.Exit(1)
	}
	saveCache(store, gw, logger)

	ha := homeassistant.New(&cfg.HomeAssistant, &cfg.Domologica, gw, logger)
	bridge := mqtt.NewMQTT(&cfg.MQTT, gw, ha, logger)
	if cfg.HomeAssistant.Discovery {
		bridge.SetOnConnect(ha.Republish)
	}

	// Connect to MQTT broker
	if err := bridge.Connect(); err != nil {
		logger.Error("Failed to connect to MQTT broker: %v", err)
		gw.Stop()
		os.Exit(1)
	}
	bridge.Start()

	// Initialize and start Home Assistant integration if enabled
	if cfg.HomeAssistant.Discovery {
		ha.Start(bridge)
	}

	var srv *http.Server
	if m != nil {
		srv = serveMetrics(cfg.Metrics.Listen, m, logger)
	}

	// Wait for termination signal
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down...")
	ha.Stop()
	bridge.Close()
	gw.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		cancel()
	}
	saveCache(store, gw, logger)
}

func gatewayOptions(cfg *config.Config) gateway.Options {
	return gateway.Options{
		ScanInterval:        cfg.Domologica.ScanIntervalDuration(),
		RefreshCooldown:     cfg.Domologica.RefreshCooldown(),
		OptimisticTTL:       cfg.Domologica.OptimisticTTL(),
		TurboDelays:         cfg.Domologica.TurboDelays(),
		MetadataConcurrency: cfg.Domologica.MetadataConcurrency,
	}
}

// startGateway blocks until the first refresh succeeds, retrying every
// interval, or until ctx is cancelled.
func startGateway(ctx context.Context, gw *gateway.Gateway, interval time.Duration, logger *log.Logger) error {
	for {
		err := gw.Start(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		logger.Error("Gateway not ready, retrying in %s: %v", interval, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
	return srv
}

func saveCache(store *cache.Store, gw *gateway.Gateway, logger *log.Logger) {
	if store == nil {
		return
	}
	if err := store.Save(gw.MetadataCache()); err != nil {
		logger.Warning("Failed to save cache: %v", err)
	} else {
		logger.Info("Saved data to cache")
	}
}
