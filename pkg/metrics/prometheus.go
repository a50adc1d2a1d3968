package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lineradar"

// Recorder exposes the gateway's Prometheus collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	polls            *prometheus.CounterVec
	pollLatency      *prometheus.HistogramVec
	deviceHealthy    *prometheus.GaugeVec
	cyclesDropped    prometheus.Counter
	deriveErrors     *prometheus.CounterVec
	broadcastDropped prometheus.Counter
	connections      prometheus.Gauge
	andonTriggered   *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Device polls by result.",
		}, []string{"device", "result"}),
		pollLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Device poll round-trip time.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"device"}),
		deviceHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_healthy",
			Help:      "1 when the device is reachable.",
		}, []string{"device"}),
		cyclesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_cycles_dropped_total",
			Help:      "Poll cycles dropped because the worker queue was full.",
		}),
		deriveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derive_errors_total",
			Help:      "Derivation cycles that failed.",
		}, []string{"equipment"}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Events dropped from full connection queues.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_connections",
			Help:      "Registered broadcast connections.",
		}),
		andonTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "andon_triggered_total",
			Help:      "Andon events opened by type and priority.",
		}, []string{"type", "priority"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Automatic escalations by priority and target level.",
		}, []string{"priority", "level"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sender and result.",
		}, []string{"sender", "result"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.polls,
		r.pollLatency,
		r.deviceHealthy,
		r.cyclesDropped,
		r.deriveErrors,
		r.broadcastDropped,
		r.connections,
		r.andonTriggered,
		r.escalations,
		r.notifications,
	)

	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

func (r *Recorder) ObservePoll(device string, d time.Duration, err error) {
	if r == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	r.polls.WithLabelValues(device, result).Inc()
	r.pollLatency.WithLabelValues(device).Observe(d.Seconds())
}

func (r *Recorder) SetDeviceHealthy(device string, healthy bool) {
	if r == nil {
		return
	}

	v := 0.0
	if healthy {
		v = 1
	}

	r.deviceHealthy.WithLabelValues(device).Set(v)
}

func (r *Recorder) CycleDropped() {
	if r == nil {
		return
	}

	r.cyclesDropped.Inc()
}

func (r *Recorder) DeriveError(equipment string) {
	if r == nil {
		return
	}

	r.deriveErrors.WithLabelValues(equipment).Inc()
}

func (r *Recorder) BroadcastDropped(n int) {
	if r == nil || n <= 0 {
		return
	}

	r.broadcastDropped.Add(float64(n))
}

func (r *Recorder) SetConnections(n int) {
	if r == nil {
		return
	}

	r.connections.Set(float64(n))
}

func (r *Recorder) AndonTriggered(andonType, priority string) {
	if r == nil {
		return
	}

	r.andonTriggered.WithLabelValues(andonType, priority).Inc()
}

func (r *Recorder) Escalated(priority, level string) {
	if r == nil {
		return
	}

	r.escalations.WithLabelValues(priority, level).Inc()
}

func (r *Recorder) Notification(sender string, err error) {
	if r == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	r.notifications.WithLabelValues(sender, result).Inc()
}
