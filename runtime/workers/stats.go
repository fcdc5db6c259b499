package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/observability"
)

// StatsWorker samples relay counters and process metrics (RSS, CPU) on
// a fixed interval and logs them. It is observability only: losing a
// sample has no effect on delivery.
type StatsWorker struct {
	log        *slog.Logger
	monitoring *observability.Monitor
	interval   time.Duration
}

func NewStatsWorker(log *slog.Logger, monitoring *observability.Monitor,
	interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, monitoring: monitoring, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats worker")
			return nil
		case <-ticker.C:
			stats := w.monitoring.Snapshot()
			rss, cpu := selfStats(p)
			w.log.Info("Relay stats",
				"active_sessions", stats.ActiveSessions,
				"registered", stats.SessionsRegistered,
				"evicted", stats.SessionsEvicted,
				"delivered", stats.EventsDelivered,
				"skipped", stats.TargetsSkipped,
				"failures", stats.DeliveryFailures,
				"rss_bytes", rss,
				"cpu_percent", cpu,
			)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64) {
	var rss uint64
	if memInfo, err := p.MemoryInfo(); err == nil {
		rss = memInfo.RSS
	}
	cpu, _ := p.CPUPercent()
	return rss, cpu
}
