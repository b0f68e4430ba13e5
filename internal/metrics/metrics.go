package metrics

import (
	"net/http"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/marketplace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "marketplace"

	resultOk = "ok"
)

var latencyBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 30}

type Metrics interface {
	ObserveOperation(operation string, seconds float64, err error)
	SetActiveListings(count int)
	Listen(events event.Manager)
	Handler() http.Handler
}

type metrics struct {
	registry       *prometheus.Registry
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	activeListings prometheus.Gauge
	sales          prometheus.Counter
	withdrawals    prometheus.Counter
}

func NewMetrics() Metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "State changing operations by outcome.",
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by state changing operations, collaborator calls included.",
			Buckets:   latencyBuckets,
		}, []string{"operation"}),
		activeListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_listings",
			Help:      "Listings currently open.",
		}),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Completed purchases.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Completed proceeds withdrawals.",
		}),
	}

	m.registry.MustRegister(m.operations, m.latency, m.activeListings, m.sales, m.withdrawals)

	return m
}

// ObserveOperation records an operation's outcome. Failures are labelled with
// their marketplace error kind.
func (m *metrics) ObserveOperation(operation string, seconds float64, err error) {
	result := resultOk
	if err != nil {
		result = string(marketplace.KindOf(err))
	}

	m.operations.WithLabelValues(operation, result).Inc()
	m.latency.WithLabelValues(operation).Observe(seconds)
}

func (m *metrics) SetActiveListings(count int) {
	m.activeListings.Set(float64(count))
}

// Listen keeps the listing gauge and sale counters in step with committed events.
func (m *metrics) Listen(events event.Manager) {
	events.AddEventListener(event.ItemListedEvent, func(msg interface{}) {
		m.activeListings.Inc()
	})
	events.AddEventListener(event.ItemCanceledEvent, func(msg interface{}) {
		m.activeListings.Dec()
	})
	events.AddEventListener(event.ItemBoughtEvent, func(msg interface{}) {
		m.activeListings.Dec()
		m.sales.Inc()
	})
	events.AddEventListener(event.ProceedsWithdrawnEvent, func(msg interface{}) {
		if _, ok := msg.(entity.MarketplaceAction); ok {
			m.withdrawals.Inc()
		}
	})
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
