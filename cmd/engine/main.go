// Command engine runs the cross-exchange arbitrage detection core: it
// ingests market-data messages, maintains a top-of-book store, scans for
// arbitrage opportunities, and publishes signals to the downstream broker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbisniper/quantengine/internal/bookstore"
	"github.com/arbisniper/quantengine/internal/config"
	"github.com/arbisniper/quantengine/internal/ingress"
	"github.com/arbisniper/quantengine/internal/monitoring"
	"github.com/arbisniper/quantengine/internal/pipeline"
	"github.com/arbisniper/quantengine/internal/signalsink"
	"github.com/arbisniper/quantengine/internal/spread"
)

// debugSnapshotEvery is the number of successful book updates between
// periodic debug snapshots of the book.
const debugSnapshotEvery = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		monitoring.GetLogger().Fatal("config: load failed", err, nil)
	}

	logger := monitoring.NewLogger("quantengine")
	logger.SetMinLevel(monitoring.ParseLevel(cfg.Engine.LogLevel))
	monitoring.SetGlobalLogger(logger)

	logger.Info("quant engine starting", map[string]interface{}{
		"spread_threshold_pct": cfg.Engine.SpreadThresholdPct,
		"symbols":              cfg.Engine.Symbols,
		"ingress_endpoint":     cfg.Ingress.Endpoint,
		"signal_channel":       cfg.Broker.Channel,
	})

	store := bookstore.New(cfg.MaxPriceAge())
	engine := spread.New(store, cfg.Engine.SpreadThresholdPct)
	ing := ingress.New(cfg.Ingress.Endpoint)

	sink, err := signalsink.New(cfg.Broker.URL, cfg.Broker.Channel, logger)
	if err != nil {
		logger.Fatal("signalsink: construction failed", err, nil)
	}

	driver := pipeline.New(store, engine, ing, sink, logger, debugSnapshotEvery)

	health := monitoring.NewHealthChecker()
	health.Register("pipeline", func() monitoring.ComponentHealth {
		status := monitoring.StatusHealthy
		if driver.State() != pipeline.Running {
			status = monitoring.StatusDegraded
		}
		return monitoring.ComponentHealth{Status: status, Message: driver.State().String(), LastChecked: time.Now()}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return driver.Run(groupCtx)
	})

	metricsServer := &http.Server{Addr: ":9090", Handler: metricsMux(health)}
	group.Go(func() error {
		<-groupCtx.Done()
		return metricsServer.Shutdown(context.Background())
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != pipeline.Cancelled {
		logger.Fatal("quant engine exited with error", err, nil)
	}

	logger.Info("quant engine stopped", nil)
}

func metricsMux(health *monitoring.HealthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)
	return mux
}
