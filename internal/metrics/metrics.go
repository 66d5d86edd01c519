// Package metrics exposes Prometheus collectors for the negotiation registry
// and the activities.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-rfq/internal/domain"
)

const namespace = "rfq"

// Collectors groups every rfq metric. The zero value is not usable; create
// one with New.
type Collectors struct {
	submitted  prometheus.Counter
	duplicates prometheus.Counter
	outcomes   *prometheus.CounterVec
	active     prometheus.Gauge
	activities *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted for negotiation.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_submissions_total",
			Help:      "Submissions rejected because the order was already negotiating.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Terminal negotiation outcomes by status.",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_negotiations",
			Help:      "Negotiations that have not reached a terminal outcome.",
		}),
		activities: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activity_duration_seconds",
			Help:      "Duration of negotiation activities.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"activity", "result"}),
	}
	reg.MustRegister(c.submitted, c.duplicates, c.outcomes, c.active, c.activities)
	return c
}

// OrderSubmitted counts an accepted submission.
func (c *Collectors) OrderSubmitted() { c.submitted.Inc() }

// DuplicateRejected counts a submission refused as a duplicate.
func (c *Collectors) DuplicateRejected() { c.duplicates.Inc() }

// OutcomeRecorded counts a terminal outcome.
func (c *Collectors) OutcomeRecorded(status domain.OrderStatus) {
	c.outcomes.WithLabelValues(string(status)).Inc()
}

// ActiveNegotiations sets the number of non-terminal negotiations.
func (c *Collectors) ActiveNegotiations(n int) { c.active.Set(float64(n)) }

// ObserveActivity records one activity execution.
func (c *Collectors) ObserveActivity(name string, success bool, took time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.activities.WithLabelValues(name, result).Observe(took.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
