// Package health implements the Health Monitor described in spec.md
// §4.N: a 30s atomic-rename JSON snapshot of collector and queue state,
// mirrored as Prometheus gauges for scraping.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Interval is the snapshot write cadence.
const Interval = 30 * time.Second

// Source is the subset of internal/collector.Collector the monitor needs;
// kept narrow so it can be faked in tests without a live WebSocket.
type Source interface {
	Name() string
	IsConnected() bool
	LastMsgTime() time.Time
}

// QueueStats is the subset of internal/storage.Writer the monitor reads.
type QueueStats interface {
	QueueDepth() int
	Drops() uint64
}

// Snapshot is the JSON document written to disk and consumed by
// external dashboards/alerting per spec.md §4.N's GREEN/YELLOW/RED rules.
type Snapshot struct {
	HeartbeatTS   int64            `json:"heartbeat_ts"`
	SchemaVersion int              `json:"schema_version"`
	WSConnected   map[string]bool  `json:"ws_connected"`
	LastMsgTime   map[string]int64 `json:"last_msg_time"`
	QueueSize     int              `json:"queue_size"`
	QueueDrops    uint64           `json:"queue_drops"`
	LastTradeTime int64            `json:"last_trade_time"`
}

var (
	heartbeatGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kimpgate_health_heartbeat_timestamp",
		Help: "Unix timestamp of the last health snapshot write",
	})
	queueSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kimpgate_writer_queue_size",
		Help: "Current depth of the Writer's durable queue",
	})
	queueDropsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kimpgate_writer_queue_drops_total",
		Help: "Cumulative number of normal-priority writes dropped",
	})
	wsConnectedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kimpgate_collector_connected",
		Help: "1 if the collector's WebSocket is currently connected",
	}, []string{"exchange"})
	lastMsgAgeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kimpgate_collector_last_message_age_seconds",
		Help: "Seconds since the collector last received a message",
	}, []string{"exchange"})
)

func init() {
	prometheus.MustRegister(heartbeatGauge, queueSizeGauge, queueDropsGauge, wsConnectedGauge, lastMsgAgeGauge)
}

// Handler exposes the registered gauges for a /metrics mux (spec.md §4.N:
// additive observability, not a dashboard).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Monitor periodically snapshots collector and queue state to Path.
type Monitor struct {
	Path          string
	SchemaVersion int
	Sources       []Source
	Queue         QueueStats

	log zerolog.Logger
}

// New builds a Monitor writing to path.
func New(path string, schemaVersion int, sources []Source, queue QueueStats, log zerolog.Logger) *Monitor {
	return &Monitor{
		Path: path, SchemaVersion: schemaVersion, Sources: sources, Queue: queue,
		log: log.With().Str("component", "health").Logger(),
	}
}

// Run writes a snapshot every Interval until stop is closed, writing one
// final snapshot immediately before returning so a forced shutdown still
// leaves a fresh file.
func (m *Monitor) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			m.writeSnapshot()
			return
		case <-ticker.C:
			m.writeSnapshot()
		}
	}
}

func (m *Monitor) writeSnapshot() {
	if err := m.Snapshot(); err != nil {
		m.log.Debug().Err(err).Msg("health snapshot write failed")
	}
}

// Snapshot builds and atomically writes one snapshot, updating the
// mirrored Prometheus gauges in the same pass.
func (m *Monitor) Snapshot() error {
	now := time.Now()
	snap := Snapshot{
		HeartbeatTS:   now.Unix(),
		SchemaVersion: m.SchemaVersion,
		WSConnected:   make(map[string]bool, len(m.Sources)),
		LastMsgTime:   make(map[string]int64, len(m.Sources)),
	}

	var lastTrade int64
	for _, s := range m.Sources {
		connected := s.IsConnected()
		lastMsg := s.LastMsgTime()
		snap.WSConnected[s.Name()] = connected
		snap.LastMsgTime[s.Name()] = lastMsg.Unix()
		if lastMsg.Unix() > lastTrade {
			lastTrade = lastMsg.Unix()
		}

		connVal := 0.0
		if connected {
			connVal = 1.0
		}
		wsConnectedGauge.WithLabelValues(s.Name()).Set(connVal)
		if !lastMsg.IsZero() {
			lastMsgAgeGauge.WithLabelValues(s.Name()).Set(now.Sub(lastMsg).Seconds())
		}
	}
	snap.LastTradeTime = lastTrade

	if m.Queue != nil {
		snap.QueueSize = m.Queue.QueueDepth()
		snap.QueueDrops = m.Queue.Drops()
	}

	heartbeatGauge.Set(float64(snap.HeartbeatTS))
	queueSizeGauge.Set(float64(snap.QueueSize))
	queueDropsGauge.Set(float64(snap.QueueDrops))

	return writeAtomic(m.Path, snap)
}

// writeAtomic marshals v to JSON and writes it via a same-directory
// temp file + rename, so a reader never observes a partial file.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".health-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
