package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	NotificationsTotal   *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec
	QueueJobsTotal       *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dingbot_notifications_total",
				Help: "Notifications attempted, by robot, message type and outcome",
			},
			[]string{"robot", "msgtype", "outcome"},
		),
		NotificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dingbot_notification_duration_seconds",
				Help:    "Time spent building and posting a notification",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"robot"},
		),
		QueueJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dingbot_queue_jobs_total",
				Help: "Queue operations, by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.NotificationsTotal,
		m.NotificationDuration,
		m.QueueJobsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveNotification(robot, msgType, outcome string, elapsed time.Duration) {
	m.NotificationsTotal.WithLabelValues(robot, msgType, outcome).Inc()
	m.NotificationDuration.WithLabelValues(robot).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQueue(result string) {
	m.QueueJobsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
