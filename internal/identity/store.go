package identity

import "context"

// Store is interface-driven to keep the registry logic testable and to allow
// swapping the in-memory implementation for PostgreSQL without rewiring
// business code. Stores return pkg/platform/sentinel errors; the service
// translates them into coded domain errors.
type Store interface {
	// Save appends a new live registration. Returns sentinel.ErrConflict
	// (wrapped with detail) when the identity already has a live
	// registration or the business license was ever used.
	Save(ctx context.Context, s Stakeholder) error

	// FindLive returns the live registration for an identity, or
	// sentinel.ErrNotFound.
	FindLive(ctx context.Context, identity string) (Stakeholder, error)

	// Execute atomically validates and mutates the live registration for an
	// identity. The store holds its lock across both callbacks.
	Execute(ctx context.Context, identity string, validate func(*Stakeholder) error, mutate func(*Stakeholder)) (Stakeholder, error)

	// ListByRole returns live registrations holding the role.
	ListByRole(ctx context.Context, role Role) ([]Stakeholder, error)

	// FindByLicense returns the registration (live or historical) holding
	// the license, or sentinel.ErrNotFound.
	FindByLicense(ctx context.Context, license string) (Stakeholder, error)

	// SearchByName returns live registrations whose business name contains
	// the substring (exact case).
	SearchByName(ctx context.Context, substring string) ([]Stakeholder, error)
}
