package progress

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "imgbundle"

// Metrics exports run progress as Prometheus metrics.
type Metrics struct {
	batches         prometheus.Counter
	entries         *prometheus.CounterVec
	bytes           prometheus.Counter
	batchesInFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of fetch batches completed",
		}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Total number of archive entries by outcome",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_bytes_total",
			Help:      "Total uncompressed bytes stored in archives",
		}),
		batchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_in_flight",
			Help:      "Number of fetch batches currently running across all exports",
		}),
	}

	for _, c := range []prometheus.Collector{m.batches, m.entries, m.bytes, m.batchesInFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register progress metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) BatchStarted(int, int) {
	m.batchesInFlight.Inc()
}

func (m *Metrics) BatchCompleted(int) {
	m.batchesInFlight.Dec()
	m.batches.Inc()
}

func (m *Metrics) EntryCompleted(_ string, bytesWritten int64) {
	m.entries.WithLabelValues("archived").Inc()
	m.bytes.Add(float64(bytesWritten))
}

func (m *Metrics) EntryFailed(string, error) {
	m.entries.WithLabelValues("failed").Inc()
}
