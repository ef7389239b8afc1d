package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Total number of contact submissions by terminal stage",
		},
		[]string{"stage"},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contact_step_duration_seconds",
			Help:    "Duration of the persist and notify steps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step", "result"},
	)

	RelayQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contact_relay_queue_depth",
			Help: "Current RabbitMQ mail relay queue depth",
		},
		[]string{"queue"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(Submissions)
	prometheus.MustRegister(StepDuration)
	prometheus.MustRegister(RelayQueueDepth)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
