// Package metrics exposes Prometheus metrics of the notification scheduler.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_notifier_notifications_total",
			Help: "Total number of notifications sent, by target and HTTP status",
		},
		[]string{"target", "status"},
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delta_notifier_notification_duration_seconds",
			Help:    "Duration of notification requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"target"},
	)

	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_notifier_ticks_total",
			Help: "Total number of scheduler rounds, by outcome",
		},
		[]string{"outcome"}, // notified, skipped, error
	)

	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delta_notifier_config_reloads_total",
			Help: "Total number of configuration reloads",
		},
		[]string{"status"},
	)

	IntervalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delta_notifier_interval_seconds",
			Help: "Current scheduling interval in seconds",
		},
	)

	MarkersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delta_notifier_markers_created_total",
			Help: "Total number of marker files created at bootstrap",
		},
	)

	ServiceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delta_notifier_info",
			Help: "Information about the running binary",
		},
		[]string{"version", "commit"},
	)
)

// RecordNotification counts one notification; transport failures have status "error"
func RecordNotification(target string, statusCode int, err error, duration time.Duration) {
	NotificationsTotal.WithLabelValues(target, StatusLabel(statusCode, err)).Inc()
	NotificationDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordTick counts one scheduler round
func RecordTick(outcome string) {
	TicksTotal.WithLabelValues(outcome).Inc()
}

// RecordReload counts a configuration reload
func RecordReload(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ConfigReloadsTotal.WithLabelValues(status).Inc()
}

// SetServiceInfo publishes the build information
func SetServiceInfo(version, commit string) {
	ServiceInfo.WithLabelValues(version, commit).Set(1)
}

// StatusLabel turns a notification outcome into a label value
func StatusLabel(statusCode int, err error) string {
	if err != nil {
		return "error"
	}
	return strconv.Itoa(statusCode)
}
