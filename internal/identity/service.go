package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"foodtrace/internal/platform/metrics"
	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
	"foodtrace/pkg/platform/sentinel"
	pstrings "foodtrace/pkg/platform/strings"
	"foodtrace/pkg/requestcontext"
)

// Service is the authoritative source of who may act in which role. Both
// ledgers consult it before every mutation; the aggregator consults it for
// every historical actor.
//
// Administrative actions (Register, Deactivate, TransferAdmin) are
// restricted to the single current admin identity. Query operations are open
// to all callers.
type Service struct {
	store    Store
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// gate is the chain-wide write lock shared with the product and
	// shipment ledgers so authorization reads inside ledger mutations
	// observe a stable registry.
	gate *sync.Mutex

	adminMu sync.RWMutex
	admin   string
}

func NewService(store Store, admin string, gate *sync.Mutex, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		gate:     gate,
		admin:    admin,
	}
}

// Admin returns the current privileged identity.
func (s *Service) Admin() string {
	s.adminMu.RLock()
	defer s.adminMu.RUnlock()
	return s.admin
}

func (s *Service) requireAdmin(ctx context.Context) error {
	if requestcontext.Caller(ctx) != s.Admin() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry admin")
	}
	return nil
}

// Register creates a live registration for an identity. An identity may be
// re-registered under a new role and license after deactivation.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Stakeholder, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return Stakeholder{}, s.reject(err)
	}
	in.Identity = strings.TrimSpace(in.Identity)
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.BusinessLicense = strings.TrimSpace(in.BusinessLicense)
	if in.Identity == "" {
		return Stakeholder{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
	}
	if in.BusinessName == "" {
		return Stakeholder{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "business name is required"))
	}
	if in.BusinessLicense == "" {
		return Stakeholder{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "business license is required"))
	}
	if _, err := ParseRole(string(in.Role)); err != nil {
		return Stakeholder{}, s.reject(err)
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	// The serial execution model makes check-then-save safe here; the store
	// still enforces both constraints as a backstop.
	if _, err := s.store.FindLive(ctx, in.Identity); err == nil {
		return Stakeholder{}, s.reject(dErrors.Newf(dErrors.CodeAlreadyExists, "identity %s already has a live registration", in.Identity))
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
	}
	if _, err := s.store.FindByLicense(ctx, in.BusinessLicense); err == nil {
		return Stakeholder{}, s.reject(dErrors.Newf(dErrors.CodeDuplicateKey, "business license %s already registered", in.BusinessLicense))
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "license lookup failed")
	}

	now := requestcontext.Now(ctx)
	reg := Stakeholder{
		Identity:        in.Identity,
		Role:            in.Role,
		BusinessName:    in.BusinessName,
		BusinessLicense: in.BusinessLicense,
		Location:        in.Location,
		Certifications:  pstrings.DedupeAndTrim(in.Certifications),
		Active:          true,
		RegisteredAt:    now,
		LastActivity:    now,
	}
	if err := s.store.Save(ctx, reg); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Stakeholder{}, s.reject(dErrors.New(dErrors.CodeAlreadyExists, "conflicting registration"))
		}
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save registration")
	}
	if err := s.recorder.Record(ctx, audit.EntityStakeholder, reg.Identity, audit.EventStakeholderRegistered, string(reg.Role)); err != nil {
		return Stakeholder{}, err
	}
	s.metrics.StakeholdersRegistered.Inc()
	return reg, nil
}

// Deactivate soft-deletes the live registration for an identity. The record
// is retained; the identity may register again afterwards.
func (s *Service) Deactivate(ctx context.Context, identity string) (Stakeholder, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return Stakeholder{}, s.reject(err)
	}
	s.gate.Lock()
	defer s.gate.Unlock()

	reg, err := s.store.Execute(ctx, identity,
		func(r *Stakeholder) error { return nil },
		func(r *Stakeholder) { r.Active = false },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Stakeholder{}, s.reject(dErrors.Newf(dErrors.CodeNotFound, "identity %s has no live registration", identity))
		}
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate registration")
	}
	if err := s.recorder.Record(ctx, audit.EntityStakeholder, identity, audit.EventStakeholderDeactivated, string(reg.Role)); err != nil {
		return Stakeholder{}, err
	}
	return reg, nil
}

// UpdateInfo lets a stakeholder revise its own business info. The admin may
// update any registration.
func (s *Service) UpdateInfo(ctx context.Context, identity string, in UpdateInput) (Stakeholder, error) {
	caller := requestcontext.Caller(ctx)
	if caller != identity && caller != s.Admin() {
		return Stakeholder{}, s.reject(dErrors.New(dErrors.CodeUnauthorized, "only the stakeholder or the admin may update registration info"))
	}
	s.gate.Lock()
	defer s.gate.Unlock()

	now := requestcontext.Now(ctx)
	reg, err := s.store.Execute(ctx, identity,
		func(r *Stakeholder) error { return nil },
		func(r *Stakeholder) {
			if in.BusinessName != "" {
				r.BusinessName = in.BusinessName
			}
			if in.Location != "" {
				r.Location = in.Location
			}
			if in.Certifications != nil {
				r.Certifications = pstrings.DedupeAndTrim(in.Certifications)
			}
			r.LastActivity = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Stakeholder{}, s.reject(dErrors.Newf(dErrors.CodeNotFound, "identity %s has no live registration", identity))
		}
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration")
	}
	if err := s.recorder.Record(ctx, audit.EntityStakeholder, identity, audit.EventStakeholderUpdated, ""); err != nil {
		return Stakeholder{}, err
	}
	return reg, nil
}

// TouchActivity stamps LastActivity for a live registration. The ledgers
// call this on every successful action by the identity.
func (s *Service) TouchActivity(ctx context.Context, identity string) error {
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, identity,
		func(r *Stakeholder) error { return nil },
		func(r *Stakeholder) { r.LastActivity = now },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "identity %s has no live registration", identity)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to touch activity")
	}
	return nil
}

// TransferAdmin hands the privileged role to a new identity.
func (s *Service) TransferAdmin(ctx context.Context, newAdmin string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return s.reject(err)
	}
	newAdmin = strings.TrimSpace(newAdmin)
	if newAdmin == "" {
		return s.reject(dErrors.New(dErrors.CodeInvalidInput, "new admin identity is required"))
	}
	s.adminMu.Lock()
	s.admin = newAdmin
	s.adminMu.Unlock()
	return s.recorder.Record(ctx, audit.EntityStakeholder, newAdmin, audit.EventAdminTransferred, "")
}

// IsAuthorized reports whether identity holds a live registration with
// exactly the given role.
func (s *Service) IsAuthorized(ctx context.Context, identity string, role Role) (bool, error) {
	reg, err := s.store.FindLive(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
	}
	return reg.Role == role, nil
}

// IsActiveAny reports whether identity holds a live registration in any
// role. Used for participant-agnostic gates such as audit annotations.
func (s *Service) IsActiveAny(ctx context.Context, identity string) (bool, error) {
	_, err := s.store.FindLive(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
	}
	return true, nil
}

// Get returns the live registration for an identity.
func (s *Service) Get(ctx context.Context, identity string) (Stakeholder, error) {
	reg, err := s.store.FindLive(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Stakeholder{}, dErrors.Newf(dErrors.CodeNotFound, "identity %s has no live registration", identity)
		}
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
	}
	return reg, nil
}

// ByRole lists live registrations holding the role.
func (s *Service) ByRole(ctx context.Context, role Role) ([]Stakeholder, error) {
	return s.store.ListByRole(ctx, role)
}

// ByLicense returns the registration holding a business license, live or
// historical.
func (s *Service) ByLicense(ctx context.Context, license string) (Stakeholder, error) {
	reg, err := s.store.FindByLicense(ctx, license)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Stakeholder{}, dErrors.Newf(dErrors.CodeNotFound, "license %s is not registered", license)
		}
		return Stakeholder{}, dErrors.Wrap(err, dErrors.CodeInternal, "license lookup failed")
	}
	return reg, nil
}

// SearchByName returns live registrations whose business name contains the
// substring (exact case).
func (s *Service) SearchByName(ctx context.Context, substring string) ([]Stakeholder, error) {
	return s.store.SearchByName(ctx, substring)
}

func (s *Service) reject(err error) error {
	s.metrics.RejectedOperations.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	return err
}
