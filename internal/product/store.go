package product

import "context"

// Store owns product records and the authorship index. Stores return
// pkg/platform/sentinel errors; the service translates them into coded
// domain errors.
type Store interface {
	// Create assigns the next monotonic ID and persists the product.
	// Returns sentinel.ErrConflict when the batch number was ever used.
	Create(ctx context.Context, p *Product) error

	// FindByID returns the product regardless of its active flag, or
	// sentinel.ErrNotFound. Existence-vs-active policy lives in the
	// service.
	FindByID(ctx context.Context, id uint64) (Product, error)

	// FindByBatch returns the product holding a batch number.
	FindByBatch(ctx context.Context, batch string) (Product, error)

	// Execute atomically validates and mutates a product. The store holds
	// its lock across both callbacks.
	Execute(ctx context.Context, id uint64, validate func(*Product) error, mutate func(*Product)) (Product, error)

	// AddAuthorship appends a product to a stakeholder's authorship index.
	AddAuthorship(ctx context.Context, identity string, id uint64) error

	// ListByStakeholder returns the IDs in a stakeholder's authorship
	// index, in insertion order.
	ListByStakeholder(ctx context.Context, identity string) ([]uint64, error)

	// ListByStage returns active products currently in the stage.
	ListByStage(ctx context.Context, stage Stage) ([]Product, error)

	// StageCounts returns the number of active products per stage.
	StageCounts(ctx context.Context) (map[Stage]int, error)

	// ActiveCount returns the number of active products.
	ActiveCount(ctx context.Context) (int, error)
}
