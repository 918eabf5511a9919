package bootstrap

import (
	"log/slog"
	"sync"

	"foodtrace/internal/identity"
	"foodtrace/internal/market"
	"foodtrace/internal/platform/metrics"
	"foodtrace/internal/product"
	"foodtrace/internal/shipment"
	"foodtrace/internal/trace"
	audit "foodtrace/pkg/platform/audit"
)

// Deps are the externally owned collaborators a System is provisioned over.
// Stores may be memory or PostgreSQL variants; the feed may be live, cached,
// or static.
type Deps struct {
	AdminIdentity string
	IdentityStore identity.Store
	ProductStore  product.Store
	ShipmentStore shipment.Store
	AuditStore    audit.Store
	Feed          market.Feed
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// System is one fully wired traceability deployment: the identity registry,
// both ledgers, and the aggregator, sharing a single chain-wide write lock
// and one notification recorder.
type System struct {
	Identities    *identity.Service
	Products      *product.Service
	Shipments     *shipment.Service
	Trace         *trace.Service
	Notifications audit.Store
	Recorder      *audit.Recorder
}

// Provision instantiates the four components and wires them to each other.
// The returned System is ready to serve; nothing else shares its lock.
func Provision(deps Deps) *System {
	gate := &sync.Mutex{}
	recorder := audit.NewRecorder(deps.AuditStore, deps.Logger)

	identities := identity.NewService(deps.IdentityStore, deps.AdminIdentity, gate, recorder, deps.Metrics, deps.Logger)
	products := product.NewService(deps.ProductStore, identities, deps.Feed, gate, recorder, deps.Metrics, deps.Logger)
	shipments := shipment.NewService(deps.ShipmentStore, identities, products, gate, recorder, deps.Metrics, deps.Logger)
	tracer := trace.NewService(identities, products, shipments, recorder, deps.Metrics, deps.Logger)

	return &System{
		Identities:    identities,
		Products:      products,
		Shipments:     shipments,
		Trace:         tracer,
		Notifications: deps.AuditStore,
		Recorder:      recorder,
	}
}
