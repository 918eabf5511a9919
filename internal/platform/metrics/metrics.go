package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the trace core.
type Metrics struct {
	StakeholdersRegistered prometheus.Counter
	ProductsCreated        prometheus.Counter
	StageAdvances          *prometheus.CounterVec
	ShipmentsCreated       prometheus.Counter
	StatusUpdates          *prometheus.CounterVec
	VerificationsRun       *prometheus.CounterVec
	RejectedOperations     *prometheus.CounterVec
	RequestDuration        *prometheus.HistogramVec
}

// New creates all metrics on the default registry for production wiring.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StakeholdersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "foodtrace_stakeholders_registered_total",
			Help: "Total number of stakeholder registrations.",
		}),
		ProductsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "foodtrace_products_created_total",
			Help: "Total number of products created.",
		}),
		StageAdvances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrace_stage_advances_total",
			Help: "Stage transitions applied, labeled by target stage.",
		}, []string{"stage"}),
		ShipmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "foodtrace_shipments_created_total",
			Help: "Total number of shipments created.",
		}),
		StatusUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrace_shipment_status_updates_total",
			Help: "Shipment status transitions applied, labeled by new status.",
		}, []string{"status"}),
		VerificationsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrace_verifications_total",
			Help: "Aggregator verification runs, labeled by check kind.",
		}, []string{"kind"}),
		RejectedOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrace_rejected_operations_total",
			Help: "Mutating operations rejected before any write, labeled by error code.",
		}, []string{"code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foodtrace_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
