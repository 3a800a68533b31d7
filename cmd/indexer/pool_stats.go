package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polwex/hpn-indexer/internal/metrics"
)

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type poolTarget struct {
	name string
	db   dbStatsProvider
}

type dbPoolStatsGauges struct {
	open         *prometheus.GaugeVec
	inUse        *prometheus.GaugeVec
	idle         *prometheus.GaugeVec
	waitCount    *prometheus.GaugeVec
	waitDuration *prometheus.GaugeVec
}

func defaultPoolGauges() dbPoolStatsGauges {
	return dbPoolStatsGauges{
		open:         metrics.DBPoolOpen,
		inUse:        metrics.DBPoolInUse,
		idle:         metrics.DBPoolIdle,
		waitCount:    metrics.DBPoolWaitCount,
		waitDuration: metrics.DBPoolWaitDurationSeconds,
	}
}

// collectDBPoolStats samples every pool. A panicking Stats call is reported
// as an error and the remaining pools are skipped.
func collectDBPoolStats(targets []poolTarget, gauges dbPoolStatsGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()

	for _, t := range targets {
		if t.db == nil {
			return fmt.Errorf("db stats provider %q is nil", t.name)
		}
		stats := t.db.Stats()
		gauges.open.WithLabelValues(t.name).Set(float64(stats.OpenConnections))
		gauges.inUse.WithLabelValues(t.name).Set(float64(stats.InUse))
		gauges.idle.WithLabelValues(t.name).Set(float64(stats.Idle))
		gauges.waitCount.WithLabelValues(t.name).Set(float64(stats.WaitCount))
		gauges.waitDuration.WithLabelValues(t.name).Set(stats.WaitDuration.Seconds())
	}
	return nil
}

func startDBPoolStatsPump(ctx context.Context, targets []poolTarget, interval time.Duration, logger *slog.Logger) {
	if len(targets) == 0 || interval <= 0 {
		return
	}
	gauges := defaultPoolGauges()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		if err := collectDBPoolStats(targets, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := collectDBPoolStats(targets, gauges); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}
