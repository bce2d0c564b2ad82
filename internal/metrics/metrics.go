package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stablePool/internal/model"
	"stablePool/internal/pool"
	"stablePool/internal/storage"
)

const namespace = "stablepool"

// Metrics holds the pool counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	events       *prometheus.CounterVec
	virtualPrice *prometheus.GaugeVec
	lpSupply     *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pool operations by type and outcome",
		}, []string{"op", "result"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pool events recorded by name",
		}, []string{"pool", "event"}),
		virtualPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "virtual_price",
			Help:      "Virtual price after the latest event, scaled by 1e18",
		}, []string{"pool"}),
		lpSupply: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lp_total_supply",
			Help:      "LP share supply after the latest event",
		}, []string{"pool"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation counts one operation; failures are labelled by error kind.
func (m *Metrics) ObserveOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = pool.ErrorKind(err)
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// Sink wraps next so every recorded event also updates the gauges. next may
// be nil.
func (m *Metrics) Sink(next storage.EventRecorder) storage.EventRecorder {
	return &sink{metrics: m, next: next}
}

type sink struct {
	metrics *Metrics
	next    storage.EventRecorder
}

func (s *sink) Record(event model.PoolEvent) error {
	s.metrics.events.WithLabelValues(event.Pool, event.EventName).Inc()
	setGauge(s.metrics.virtualPrice.WithLabelValues(event.Pool), event.PoolMeta.VirtualPrice)
	setGauge(s.metrics.lpSupply.WithLabelValues(event.Pool), event.PoolMeta.LPTotalSupply)
	if s.next == nil {
		return nil
	}
	return s.next.Record(event)
}

// setGauge stores a decimal integer string. Values past 2^53 lose precision.
func setGauge(gauge prometheus.Gauge, value string) {
	if value == "" {
		return
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		gauge.Set(f)
	}
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
