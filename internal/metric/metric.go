// Package metric exposes the gateway's Prometheus metrics.
package metric

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	TerminalsConnected prometheus.Gauge
	CommandsSent       *prometheus.CounterVec
	CommandsQueued     prometheus.Counter
	RepliesDeduped     prometheus.Counter
	LogsReceived       prometheus.Counter
	LogsBuffered       prometheus.Gauge
	FlushTotal         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		TerminalsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "terminals",
			Name:      "connected",
			Help:      "Number of terminal entries currently in the registry",
		}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "commands",
			Name:      "sent_total",
			Help:      "Commands dispatched to terminals, by command name",
		}, []string{"cmd"}),
		CommandsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "commands",
			Name:      "queued_total",
			Help:      "Commands appended to an offline terminal's queue",
		}),
		RepliesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "replies",
			Name:      "deduped_total",
			Help:      "Device acknowledgements dropped as duplicates",
		}),
		LogsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "logs",
			Name:      "received_total",
			Help:      "Attendance records received from terminals",
		}),
		LogsBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "logs",
			Name:      "buffered",
			Help:      "Enriched records waiting for the next flush",
		}),
		FlushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "logs",
			Name:      "flush_total",
			Help:      "Flush cycle outcomes, by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.TerminalsConnected,
		m.CommandsSent,
		m.CommandsQueued,
		m.RepliesDeduped,
		m.LogsReceived,
		m.LogsBuffered,
		m.FlushTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
