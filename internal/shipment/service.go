package shipment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"foodtrace/internal/identity"
	"foodtrace/internal/platform/metrics"
	"foodtrace/internal/product"
	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
	"foodtrace/pkg/platform/sentinel"
	"foodtrace/pkg/requestcontext"
)

// Authorizer is the slice of the identity registry the ledger needs at
// creation time. After creation, authorization is participant-based: being
// the recorded sender or receiver grants update rights regardless of current
// registry standing.
type Authorizer interface {
	IsAuthorized(ctx context.Context, identity string, role identity.Role) (bool, error)
	TouchActivity(ctx context.Context, identity string) error
}

// ProductLedger is the slice of the product ledger the shipment machine
// consults for eligibility. Injected so the ledger can be tested with a
// fake.
type ProductLedger interface {
	Get(ctx context.Context, id uint64) (product.Product, error)
}

// Service owns the per-shipment status state machine and its append-only
// history. All mutating operations run under the chain-wide write lock
// shared with the product ledger so the one-active-shipment-per-product
// invariant is checked and committed atomically.
type Service struct {
	store    Store
	authz    Authorizer
	products ProductLedger
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	gate     *sync.Mutex
}

func NewService(store Store, authz Authorizer, products ProductLedger, gate *sync.Mutex, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		authz:    authz,
		products: products,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		gate:     gate,
	}
}

// CreateInput carries the fields of a shipment creation request.
type CreateInput struct {
	ProductID      uint64
	Receiver       string
	TrackingNumber string
	TransportMode  string
}

// Create opens a shipment in Preparing. The caller must hold a live
// Distributor registration; the product must be active, at Processing or
// beyond, and free of any non-cancelled shipment.
func (s *Service) Create(ctx context.Context, in CreateInput) (Shipment, error) {
	caller := requestcontext.Caller(ctx)
	in.Receiver = strings.TrimSpace(in.Receiver)
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	if in.Receiver == "" {
		return Shipment{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "receiver identity is required"))
	}
	if in.TrackingNumber == "" {
		return Shipment{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "tracking number is required"))
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	if caller == "" {
		return Shipment{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "caller identity is required"))
	}
	ok, err := s.authz.IsAuthorized(ctx, caller, identity.RoleDistributor)
	if err != nil {
		return Shipment{}, err
	}
	if !ok {
		return Shipment{}, s.reject(dErrors.New(dErrors.CodeUnauthorized, "caller is not a registered distributor"))
	}

	p, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		return Shipment{}, s.reject(err)
	}
	if p.Stage < product.StageProcessing {
		return Shipment{}, s.reject(dErrors.Newf(dErrors.CodeInvalidTransition,
			"product %d is still at the farm stage and cannot be shipped", in.ProductID))
	}

	existing, err := s.store.ListByProduct(ctx, in.ProductID)
	if err != nil {
		return Shipment{}, dErrors.Wrap(err, dErrors.CodeInternal, "shipment lookup failed")
	}
	for _, prior := range existing {
		if prior.Status != StatusCancelled {
			return Shipment{}, s.reject(dErrors.Newf(dErrors.CodeAlreadyExists,
				"product %d already has shipment %d in status %s", in.ProductID, prior.ID, prior.Status))
		}
	}

	now := requestcontext.Now(ctx)
	sh := Shipment{
		ProductID:      in.ProductID,
		SenderIdentity: caller,
		Receiver:       in.Receiver,
		TrackingNumber: in.TrackingNumber,
		TransportMode:  in.TransportMode,
		Status:         StatusPreparing,
		CreatedAt:      now,
		LastUpdated:    now,
		Active:         true,
		History: []HistoryEntry{{
			Status:          StatusPreparing,
			UpdaterIdentity: caller,
			Timestamp:       now,
			TrackingInfo:    "Shipment created",
		}},
	}
	if err := s.store.Create(ctx, &sh); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Shipment{}, s.reject(dErrors.Newf(dErrors.CodeDuplicateKey, "tracking number %s already used", in.TrackingNumber))
		}
		return Shipment{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create shipment")
	}
	if err := s.recorder.Record(ctx, audit.EntityShipment, formatID(sh.ID), audit.EventShipmentCreated, sh.TrackingNumber); err != nil {
		return Shipment{}, err
	}
	if err := s.authz.TouchActivity(ctx, caller); err != nil {
		return Shipment{}, err
	}
	s.metrics.ShipmentsCreated.Inc()
	return sh, nil
}

// UpdateStatus applies one step of the transition set. Only the recorded
// sender or receiver may update; role re-verification against the registry
// is deliberately not performed here.
func (s *Service) UpdateStatus(ctx context.Context, id uint64, newStatus Status, trackingInfo, location string) (Shipment, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	sh, err := s.applyTransition(ctx, id, newStatus, trackingInfo, location)
	if err != nil {
		return Shipment{}, err
	}
	if err := s.recorder.Record(ctx, audit.EntityShipment, formatID(sh.ID), audit.EventShipmentUpdated, string(newStatus)); err != nil {
		return Shipment{}, err
	}
	if newStatus == StatusDelivered {
		if err := s.recorder.Record(ctx, audit.EntityShipment, formatID(sh.ID), audit.EventDeliveryArrived, sh.TrackingNumber); err != nil {
			return Shipment{}, err
		}
	}
	s.metrics.StatusUpdates.WithLabelValues(string(newStatus)).Inc()
	return sh, nil
}

// Cancel is the dedicated cancellation entry point. It delegates to the same
// transition-set check as UpdateStatus, so cancellation is only possible
// from Preparing; a cancel attempted from Shipped is rejected even though
// this entry point exists for it.
func (s *Service) Cancel(ctx context.Context, id uint64, reason string) (Shipment, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	sh, err := s.applyTransition(ctx, id, StatusCancelled, "Cancelled: "+reason, "")
	if err != nil {
		return Shipment{}, err
	}
	if err := s.recorder.Record(ctx, audit.EntityShipment, formatID(sh.ID), audit.EventShipmentCanceled, reason); err != nil {
		return Shipment{}, err
	}
	s.metrics.StatusUpdates.WithLabelValues(string(StatusCancelled)).Inc()
	return sh, nil
}

// VerifyDelivery moves a Delivered shipment to Verified. Only the receiver
// may verify.
func (s *Service) VerifyDelivery(ctx context.Context, id uint64) (Shipment, error) {
	caller := requestcontext.Caller(ctx)

	s.gate.Lock()
	defer s.gate.Unlock()

	now := requestcontext.Now(ctx)
	sh, err := s.store.Execute(ctx, id,
		func(sh *Shipment) error {
			if !sh.Active {
				return sentinel.ErrNotFound
			}
			if caller != sh.Receiver {
				return dErrors.New(dErrors.CodeUnauthorized, "only the receiver may verify delivery")
			}
			if !CanTransition(sh.Status, StatusVerified) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"cannot verify delivery from status %s", sh.Status)
			}
			return nil
		},
		func(sh *Shipment) {
			sh.Status = StatusVerified
			sh.LastUpdated = now
			sh.History = append(sh.History, HistoryEntry{
				Status:          StatusVerified,
				UpdaterIdentity: caller,
				Timestamp:       now,
				TrackingInfo:    "Delivery verified by receiver",
			})
		},
	)
	if err != nil {
		return Shipment{}, s.translateLookup(err, id)
	}
	if err := s.recorder.Record(ctx, audit.EntityShipment, formatID(sh.ID), audit.EventDeliveryVerified, sh.TrackingNumber); err != nil {
		return Shipment{}, err
	}
	s.metrics.StatusUpdates.WithLabelValues(string(StatusVerified)).Inc()
	return sh, nil
}

// applyTransition runs the shared participant and transition-set checks and
// appends the history entry. Callers hold the gate.
func (s *Service) applyTransition(ctx context.Context, id uint64, newStatus Status, trackingInfo, location string) (Shipment, error) {
	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)
	sh, err := s.store.Execute(ctx, id,
		func(sh *Shipment) error {
			if !sh.Active {
				return sentinel.ErrNotFound
			}
			if !sh.Participant(caller) {
				return dErrors.New(dErrors.CodeUnauthorized, "caller is not a participant of this shipment")
			}
			if !CanTransition(sh.Status, newStatus) {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"transition %s -> %s is not allowed", sh.Status, newStatus)
			}
			return nil
		},
		func(sh *Shipment) {
			sh.Status = newStatus
			sh.LastUpdated = now
			if newStatus == StatusCancelled {
				// A cancelled shipment frees the product for a new one; it
				// stays queryable through its indexes.
				sh.Active = false
			}
			sh.History = append(sh.History, HistoryEntry{
				Status:          newStatus,
				UpdaterIdentity: caller,
				Timestamp:       now,
				TrackingInfo:    trackingInfo,
				Location:        location,
			})
		},
	)
	if err != nil {
		return Shipment{}, s.translateLookup(err, id)
	}
	return sh, nil
}

// Get returns a shipment by ID.
func (s *Service) Get(ctx context.Context, id uint64) (Shipment, error) {
	sh, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Shipment{}, s.translateLookup(err, id)
	}
	return sh, nil
}

// ByTracking returns the shipment holding a tracking number.
func (s *Service) ByTracking(ctx context.Context, tracking string) (Shipment, error) {
	sh, err := s.store.FindByTracking(ctx, tracking)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Shipment{}, dErrors.Newf(dErrors.CodeNotFound, "no shipment with tracking number %s", tracking)
		}
		return Shipment{}, dErrors.Wrap(err, dErrors.CodeInternal, "tracking lookup failed")
	}
	return sh, nil
}

// ActiveByProduct returns the product's current non-cancelled shipment ID,
// or zero when none exists.
func (s *Service) ActiveByProduct(ctx context.Context, productID uint64) (uint64, error) {
	all, err := s.store.ListByProduct(ctx, productID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "shipment lookup failed")
	}
	for _, sh := range all {
		if sh.Status != StatusCancelled {
			return sh.ID, nil
		}
	}
	return 0, nil
}

// ByProduct returns every shipment ever created for a product, in creation
// order.
func (s *Service) ByProduct(ctx context.Context, productID uint64) ([]Shipment, error) {
	return s.store.ListByProduct(ctx, productID)
}

// ByParticipant returns shipments where the identity is sender or receiver.
func (s *Service) ByParticipant(ctx context.Context, identity string) ([]Shipment, error) {
	return s.store.ListByParticipant(ctx, identity)
}

// ByStatus returns shipments currently in a status.
func (s *Service) ByStatus(ctx context.Context, status Status) ([]Shipment, error) {
	return s.store.ListByStatus(ctx, status)
}

// StatusCountReport is the aggregate per-status census.
type StatusCountReport struct {
	Counts map[string]int `json:"counts"`
}

// StatusCounts returns the aggregate status-count report.
func (s *Service) StatusCounts(ctx context.Context) (StatusCountReport, error) {
	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		return StatusCountReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "status census failed")
	}
	report := StatusCountReport{Counts: make(map[string]int, len(counts))}
	for status, n := range counts {
		report.Counts[string(status)] = n
	}
	return report, nil
}

func (s *Service) translateLookup(err error, id uint64) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.reject(dErrors.Newf(dErrors.CodeNotFound, "shipment %d not found", id))
	}
	if dErrors.HasCode(err, dErrors.CodeInvalidTransition) || dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		return s.reject(err)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "shipment operation failed")
}

func (s *Service) reject(err error) error {
	s.metrics.RejectedOperations.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	return err
}

func formatID(id uint64) string {
	return fmt.Sprintf("%d", id)
}
