// Package metrics counts daemon sessions, bytes, and failures on a private
// Prometheus registry and keeps a point-in-time snapshot for the status API.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cfb8d/internal/protocol"
)

const namespace = "cfb8d"

// Snapshot is the JSON-friendly view of the collector.
type Snapshot struct {
	StartedAt      time.Time         `json:"started_at"`
	SessionsTotal  map[string]uint64 `json:"sessions_total"`
	SessionsActive int64             `json:"sessions_active"`
	BytesTotal     map[string]uint64 `json:"bytes_total"`
	Errors         map[string]uint64 `json:"errors"`
	Rejected       map[string]uint64 `json:"rejected"`
}

// Collector implements session.Observer and ipc.RejectObserver.
type Collector struct {
	registry *prometheus.Registry

	sessions *prometheus.CounterVec
	active   prometheus.Gauge
	errors   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	rejected *prometheus.CounterVec

	mu   sync.Mutex
	snap Snapshot
}

// New builds a collector registered on its own registry together with the
// Go runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions that completed a handshake, by direction.",
		}, []string{"direction"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently streaming.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Connections that ended with an error, by error kind.",
		}, []string{"kind"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_processed_total",
			Help:      "Bytes transformed, by direction.",
		}, []string{"direction"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections refused by admission control, by reason.",
		}, []string{"reason"}),
		snap: Snapshot{
			StartedAt:     time.Now().UTC(),
			SessionsTotal: map[string]uint64{},
			BytesTotal:    map[string]uint64{},
			Errors:        map[string]uint64{},
			Rejected:      map[string]uint64{},
		},
	}
	c.registry.MustRegister(
		c.sessions, c.active, c.errors, c.bytes, c.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the private registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) HandshakeFailed(err error) {
	c.recordError(err)
}

func (c *Collector) SessionOpened(_ string, s protocol.Session) {
	dir := s.Direction.String()
	c.sessions.WithLabelValues(dir).Inc()
	c.active.Inc()
	c.mu.Lock()
	c.snap.SessionsTotal[dir]++
	c.snap.SessionsActive++
	c.mu.Unlock()
}

func (c *Collector) BytesProcessed(dir protocol.Direction, n int) {
	if n <= 0 {
		return
	}
	label := dir.String()
	c.bytes.WithLabelValues(label).Add(float64(n))
	c.mu.Lock()
	c.snap.BytesTotal[label] += uint64(n)
	c.mu.Unlock()
}

func (c *Collector) SessionClosed(_ string, _ protocol.Session, err error) {
	c.active.Dec()
	c.mu.Lock()
	c.snap.SessionsActive--
	c.mu.Unlock()
	c.recordError(err)
}

// ConnectionRejected counts a connection refused before its handshake.
func (c *Collector) ConnectionRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
	c.mu.Lock()
	c.snap.Rejected[reason]++
	c.mu.Unlock()
}

func (c *Collector) recordError(err error) {
	if err == nil {
		return
	}
	kind := protocol.Kind(err)
	c.errors.WithLabelValues(kind).Inc()
	c.mu.Lock()
	c.snap.Errors[kind]++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		StartedAt:      c.snap.StartedAt,
		SessionsTotal:  copyCounts(c.snap.SessionsTotal),
		SessionsActive: c.snap.SessionsActive,
		BytesTotal:     copyCounts(c.snap.BytesTotal),
		Errors:         copyCounts(c.snap.Errors),
		Rejected:       copyCounts(c.snap.Rejected),
	}
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
