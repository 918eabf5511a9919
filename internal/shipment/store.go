package shipment

import "context"

// Store owns shipment records and their indexes. Stores return
// pkg/platform/sentinel errors; the service translates them into coded
// domain errors.
type Store interface {
	// Create assigns the next monotonic ID and persists the shipment.
	// Returns sentinel.ErrConflict when the tracking number was ever used.
	Create(ctx context.Context, sh *Shipment) error

	// FindByID returns the shipment, or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id uint64) (Shipment, error)

	// FindByTracking returns the shipment holding a tracking number.
	FindByTracking(ctx context.Context, tracking string) (Shipment, error)

	// Execute atomically validates and mutates a shipment. The store holds
	// its lock across both callbacks.
	Execute(ctx context.Context, id uint64, validate func(*Shipment) error, mutate func(*Shipment)) (Shipment, error)

	// ListByProduct returns every shipment ever created for a product, in
	// creation order. The aggregator's first-match scan depends on this
	// ordering.
	ListByProduct(ctx context.Context, productID uint64) ([]Shipment, error)

	// ListByParticipant returns shipments where identity is sender or
	// receiver, in creation order.
	ListByParticipant(ctx context.Context, identity string) ([]Shipment, error)

	// ListByStatus returns shipments currently in the status.
	ListByStatus(ctx context.Context, status Status) ([]Shipment, error)

	// StatusCounts returns the number of shipments per current status.
	StatusCounts(ctx context.Context) (map[Status]int, error)
}
