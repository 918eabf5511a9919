package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"foodtrace/internal/identity"
	"foodtrace/internal/market"
	"foodtrace/internal/platform/metrics"
	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
	"foodtrace/pkg/platform/sentinel"
	"foodtrace/pkg/requestcontext"
)

// Authorizer is the slice of the identity registry the ledger needs. Modeled
// as an injected interface so the ledger can be tested with a fake registry.
type Authorizer interface {
	IsAuthorized(ctx context.Context, identity string, role identity.Role) (bool, error)
	TouchActivity(ctx context.Context, identity string) error
}

// Service owns the per-product stage state machine and historical stage
// records. All mutating operations run under the chain-wide write lock so a
// caller observes either the pre-call state or the fully-applied post-call
// state, never an intermediate one.
type Service struct {
	store    Store
	authz    Authorizer
	feed     market.Feed
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	gate     *sync.Mutex
}

func NewService(store Store, authz Authorizer, feed market.Feed, gate *sync.Mutex, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		authz:    authz,
		feed:     feed,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		gate:     gate,
	}
}

// CreateInput carries the fields of a product creation request.
type CreateInput struct {
	Name        string
	BatchNumber string
	Data        string
	Location    string
}

// Create registers a new product at the Farm stage. The caller must hold a
// live Farmer registration. The market collaborator is consulted once; its
// fallback reading is substituted when unavailable.
func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	caller := requestcontext.Caller(ctx)
	in.Name = strings.TrimSpace(in.Name)
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	if in.Name == "" {
		return Product{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "product name is required"))
	}
	if in.BatchNumber == "" {
		return Product{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "batch number is required"))
	}
	s.gate.Lock()
	defer s.gate.Unlock()

	if err := s.authorize(ctx, caller, identity.RoleFarmer); err != nil {
		return Product{}, s.reject(err)
	}

	now := requestcontext.Now(ctx)
	reading := market.ReadOrFallback(ctx, s.feed, now)
	p := Product{
		Name:           in.Name,
		BatchNumber:    in.BatchNumber,
		FarmerIdentity: caller,
		CreatedAt:      now,
		Stage:          StageFarm,
		Active:         true,
		ContentHash:    HashData(in.Data),
		EstimatedPrice: reading.Price,
		Location:       in.Location,
		Records: []StageRecord{{
			Stage:          StageFarm,
			ActorIdentity:  caller,
			Timestamp:      now,
			Data:           in.Data,
			DataHash:       HashData(in.Data),
			MarketSnapshot: reading,
		}},
	}
	if err := s.store.Create(ctx, &p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Product{}, s.reject(dErrors.Newf(dErrors.CodeDuplicateKey, "batch number %s already used", in.BatchNumber))
		}
		return Product{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create product")
	}
	if err := s.store.AddAuthorship(ctx, caller, p.ID); err != nil {
		return Product{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index authorship")
	}
	if err := s.recorder.Record(ctx, audit.EntityProduct, formatID(p.ID), audit.EventProductCreated, p.BatchNumber); err != nil {
		return Product{}, err
	}
	if err := s.authz.TouchActivity(ctx, caller); err != nil {
		return Product{}, err
	}
	s.metrics.ProductsCreated.Inc()
	return p, nil
}

// Advance moves a product to the next stage. The target must be exactly one
// step above the current stage, and the caller must hold the role owning the
// target stage. Consumed is not reachable here.
func (s *Service) Advance(ctx context.Context, id uint64, target Stage, data string) (Product, error) {
	caller := requestcontext.Caller(ctx)
	if strings.TrimSpace(data) == "" {
		return Product{}, s.reject(dErrors.New(dErrors.CodeInvalidInput, "stage data is required"))
	}
	role, ok := RoleFor(target)
	if !ok || target == StageFarm {
		return Product{}, s.reject(dErrors.Newf(dErrors.CodeInvalidTransition, "stage %s is not reachable by advance", target))
	}
	s.gate.Lock()
	defer s.gate.Unlock()

	if err := s.authorize(ctx, caller, role); err != nil {
		return Product{}, s.reject(err)
	}

	now := requestcontext.Now(ctx)
	reading := market.ReadOrFallback(ctx, s.feed, now)

	var advisories []string
	p, err := s.store.Execute(ctx, id,
		func(p *Product) error {
			if !p.Active {
				return sentinel.ErrNotFound
			}
			if target != p.Stage+1 {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"cannot advance from %s to %s: stages advance one step at a time", p.Stage, target)
			}
			return nil
		},
		func(p *Product) {
			prior, _ := p.RecordFor(p.Stage)
			advisories = evaluateAdvisories(reading, prior.MarketSnapshot, p.EstimatedPrice)
			p.Stage = target
			p.EstimatedPrice = reading.Price
			p.Records = append(p.Records, StageRecord{
				Stage:          target,
				ActorIdentity:  caller,
				Timestamp:      now,
				Data:           data,
				DataHash:       HashData(data),
				MarketSnapshot: reading,
			})
		},
	)
	if err != nil {
		return Product{}, s.translateLookup(err, id)
	}

	if err := s.store.AddAuthorship(ctx, caller, p.ID); err != nil {
		return Product{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index authorship")
	}
	if err := s.recorder.Record(ctx, audit.EntityProduct, formatID(p.ID), audit.EventStageAdvanced, target.String()); err != nil {
		return Product{}, err
	}
	// Advisory notifications have no bearing on correctness and never
	// block the transition.
	for _, advisory := range advisories {
		s.recorder.Advise(ctx, audit.EntityProduct, formatID(p.ID), audit.EventMarketAdvisory, advisory)
	}
	if err := s.authz.TouchActivity(ctx, caller); err != nil {
		return Product{}, err
	}
	s.metrics.StageAdvances.WithLabelValues(target.String()).Inc()
	return p, nil
}

// MarkConsumed is the distinct terminal action taking a product from Retail
// to Consumed. It carries no role restriction beyond the product existing.
func (s *Service) MarkConsumed(ctx context.Context, id uint64) (Product, error) {
	caller := requestcontext.Caller(ctx)

	s.gate.Lock()
	defer s.gate.Unlock()

	now := requestcontext.Now(ctx)
	p, err := s.store.Execute(ctx, id,
		func(p *Product) error {
			if !p.Active {
				return sentinel.ErrNotFound
			}
			if p.Stage != StageRetail {
				return dErrors.Newf(dErrors.CodeInvalidTransition,
					"cannot consume a product in stage %s: consumption requires retail", p.Stage)
			}
			return nil
		},
		func(p *Product) {
			p.Stage = StageConsumed
			p.Records = append(p.Records, StageRecord{
				Stage:         StageConsumed,
				ActorIdentity: caller,
				Timestamp:     now,
			})
		},
	)
	if err != nil {
		return Product{}, s.translateLookup(err, id)
	}
	if err := s.recorder.Record(ctx, audit.EntityProduct, formatID(p.ID), audit.EventProductConsumed, ""); err != nil {
		return Product{}, err
	}
	s.metrics.StageAdvances.WithLabelValues(StageConsumed.String()).Inc()
	return p, nil
}

// Deactivate soft-deletes a product. Only the originating farmer may do
// this; the product becomes unreachable through existence-checked operations
// and its ID and batch number are never recycled.
func (s *Service) Deactivate(ctx context.Context, id uint64) error {
	caller := requestcontext.Caller(ctx)

	s.gate.Lock()
	defer s.gate.Unlock()

	_, err := s.store.Execute(ctx, id,
		func(p *Product) error {
			if !p.Active {
				return sentinel.ErrNotFound
			}
			if p.FarmerIdentity != caller {
				return dErrors.New(dErrors.CodeUnauthorized, "only the originating farmer may deactivate a product")
			}
			return nil
		},
		func(p *Product) { p.Active = false },
	)
	if err != nil {
		return s.translateLookup(err, id)
	}
	return s.recorder.Record(ctx, audit.EntityProduct, formatID(id), audit.EventProductRetired, "")
}

// Get returns an active product. Deactivated products are permanently
// unreachable here.
func (s *Service) Get(ctx context.Context, id uint64) (Product, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil || !p.Active {
		return Product{}, s.translateLookup(sentinel.ErrNotFound, id)
	}
	return p, nil
}

// ByBatch returns the active product holding a batch number.
func (s *Service) ByBatch(ctx context.Context, batch string) (Product, error) {
	p, err := s.store.FindByBatch(ctx, batch)
	if err != nil || !p.Active {
		return Product{}, dErrors.Newf(dErrors.CodeNotFound, "no product with batch %s", batch)
	}
	return p, nil
}

// ByStakeholder returns the products a stakeholder authored (created or
// advanced), in insertion order.
func (s *Service) ByStakeholder(ctx context.Context, identity string) ([]Product, error) {
	ids, err := s.store.ListByStakeholder(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "authorship lookup failed")
	}
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "product lookup failed")
		}
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// ByStage returns active products currently in a stage.
func (s *Service) ByStage(ctx context.Context, stage Stage) ([]Product, error) {
	return s.store.ListByStage(ctx, stage)
}

// StageCountReport is the aggregate per-stage census of active products.
type StageCountReport struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

// StageCounts returns the aggregate stage-count report.
func (s *Service) StageCounts(ctx context.Context) (StageCountReport, error) {
	counts, err := s.store.StageCounts(ctx)
	if err != nil {
		return StageCountReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "stage census failed")
	}
	total, err := s.store.ActiveCount(ctx)
	if err != nil {
		return StageCountReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "active count failed")
	}
	report := StageCountReport{Total: total, Counts: make(map[string]int, len(counts))}
	for stage, n := range counts {
		report.Counts[stage.String()] = n
	}
	return report, nil
}

func (s *Service) authorize(ctx context.Context, caller string, role identity.Role) error {
	if caller == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "caller identity is required")
	}
	ok, err := s.authz.IsAuthorized(ctx, caller, role)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeUnauthorized, "caller is not a registered %s", role)
	}
	return nil
}

func (s *Service) translateLookup(err error, id uint64) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.reject(dErrors.Newf(dErrors.CodeNotFound, "product %d not found", id))
	}
	if dErrors.HasCode(err, dErrors.CodeInvalidTransition) || dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		return s.reject(err)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "product operation failed")
}

func (s *Service) reject(err error) error {
	s.metrics.RejectedOperations.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	return err
}

func formatID(id uint64) string {
	return fmt.Sprintf("%d", id)
}
