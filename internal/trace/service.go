package trace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"foodtrace/internal/identity"
	"foodtrace/internal/platform/metrics"
	"foodtrace/internal/product"
	"foodtrace/internal/shipment"
	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
	"foodtrace/pkg/requestcontext"
)

// Identities is the slice of the identity registry the aggregator reads.
type Identities interface {
	IsAuthorized(ctx context.Context, identity string, role identity.Role) (bool, error)
	IsActiveAny(ctx context.Context, identity string) (bool, error)
	Get(ctx context.Context, identity string) (identity.Stakeholder, error)
}

// Products is the slice of the product ledger the aggregator reads.
type Products interface {
	Get(ctx context.Context, id uint64) (product.Product, error)
}

// Shipments is the slice of the shipment ledger the aggregator reads.
type Shipments interface {
	ByProduct(ctx context.Context, productID uint64) ([]shipment.Shipment, error)
}

// Service is the read side of the system. It holds no state of its own; every
// answer is assembled from fresh snapshots of the three ledgers. The one
// mutating operation, RecordAudit, only appends to the notification log.
type Service struct {
	identities Identities
	products   Products
	shipments  Shipments
	recorder   *audit.Recorder
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(identities Identities, products Products, shipments Shipments, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		identities: identities,
		products:   products,
		shipments:  shipments,
		recorder:   recorder,
		metrics:    m,
		logger:     logger,
	}
}

// VerificationResult is the outcome of an authenticity or supply-chain
// check. It is computed on demand and never persisted.
type VerificationResult struct {
	ProductID uint64 `json:"productId"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message"`
}

// VerifyAuthenticity confirms that the actor recorded at every stage up to
// the product's current stage still holds a live registration for the role
// that owns that stage. The first failing stage names its role in the
// message.
func (s *Service) VerifyAuthenticity(ctx context.Context, productID uint64) (VerificationResult, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return VerificationResult{}, err
	}
	result, err := s.checkActors(ctx, p)
	if err != nil {
		return VerificationResult{}, err
	}
	s.metrics.VerificationsRun.WithLabelValues("authenticity").Inc()
	return result, nil
}

// VerifyCompleteSupplyChain runs the authenticity check and then classifies
// the product's shipment record. The shipment is found by a first-match scan
// over the product's shipments in creation order, so when an earlier
// shipment was cancelled and replaced the scan still lands on the cancelled
// one. That stale answer is long-standing observed behavior; keep the scan
// order.
func (s *Service) VerifyCompleteSupplyChain(ctx context.Context, productID uint64) (VerificationResult, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return VerificationResult{}, err
	}
	result, err := s.checkActors(ctx, p)
	if err != nil {
		return VerificationResult{}, err
	}
	s.metrics.VerificationsRun.WithLabelValues("supply_chain").Inc()
	if !result.Valid {
		return result, nil
	}

	all, err := s.shipments.ByProduct(ctx, productID)
	if err != nil {
		return VerificationResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "shipment lookup failed")
	}
	if len(all) == 0 {
		result.Message = "supply chain verified, no shipment data available"
		return result, nil
	}
	first := all[0]
	if first.Status == shipment.StatusCancelled || first.Status == shipment.StatusUnableToDeliver {
		result.Valid = false
		result.Message = fmt.Sprintf("shipment has issues: status %s", first.Status)
		return result, nil
	}
	result.Message = "complete supply chain verified"
	return result, nil
}

// checkActors walks the stages from Farm up to the product's current stage
// (Consumed has no owning role and is skipped) and re-verifies each recorded
// actor against the registry.
func (s *Service) checkActors(ctx context.Context, p product.Product) (VerificationResult, error) {
	result := VerificationResult{ProductID: p.ID, Valid: true, Message: "product is authentic"}
	for stage := product.StageFarm; stage <= p.Stage; stage++ {
		role, ok := product.RoleFor(stage)
		if !ok {
			continue
		}
		rec, ok := p.RecordFor(stage)
		if !ok {
			continue
		}
		authorized, err := s.identities.IsAuthorized(ctx, rec.ActorIdentity, role)
		if err != nil {
			return VerificationResult{}, err
		}
		if !authorized {
			result.Valid = false
			result.Message = fmt.Sprintf("%s registration invalid", roleTitle(role))
			return result, nil
		}
	}
	return result, nil
}

// StageActor is one stage of a traceability report with the registry's
// current view of the recorded actor.
type StageActor struct {
	Stage         string                `json:"stage"`
	ActorIdentity string                `json:"actorIdentity"`
	Timestamp     string                `json:"timestamp"`
	Data          string                `json:"data,omitempty"`
	Stakeholder   *identity.Stakeholder `json:"stakeholder,omitempty"`
}

// Report is the structured reconstruction of a product's recorded history.
// The full variant additionally carries the shipment trail and the combined
// verification result.
type Report struct {
	Product      product.Product     `json:"product"`
	Stages       []StageActor        `json:"stages"`
	Shipment     *shipment.Shipment  `json:"shipment,omitempty"`
	Shipments    []shipment.Shipment `json:"shipments,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	FullyTraced  bool                `json:"fullyTraced"`
}

// TraceabilityReport assembles the product, its per-stage actor info, and
// the first-match shipment. FullyTraced is true for any product the report
// can be built for; it does not assert that every stage has been reached.
func (s *Service) TraceabilityReport(ctx context.Context, productID uint64) (Report, error) {
	return s.buildReport(ctx, productID, false)
}

// FullTraceabilityReport is TraceabilityReport plus every shipment ever
// created for the product and the complete supply-chain verification.
func (s *Service) FullTraceabilityReport(ctx context.Context, productID uint64) (Report, error) {
	return s.buildReport(ctx, productID, true)
}

func (s *Service) buildReport(ctx context.Context, productID uint64, full bool) (Report, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return Report{}, err
	}
	report := Report{Product: p, FullyTraced: true}
	for _, rec := range p.Records {
		entry := StageActor{
			Stage:         rec.Stage.String(),
			ActorIdentity: rec.ActorIdentity,
			Timestamp:     rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Data:          rec.Data,
		}
		if st, err := s.identities.Get(ctx, rec.ActorIdentity); err == nil {
			entry.Stakeholder = &st
		}
		report.Stages = append(report.Stages, entry)
	}

	all, err := s.shipments.ByProduct(ctx, productID)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "shipment lookup failed")
	}
	if len(all) > 0 {
		first := all[0]
		report.Shipment = &first
	}
	if full {
		report.Shipments = all
		verification, err := s.VerifyCompleteSupplyChain(ctx, productID)
		if err != nil {
			return Report{}, err
		}
		report.Verification = &verification
	}
	return report, nil
}

// RecordAudit appends a free-form annotation to the notification log. Any
// active stakeholder may record one; product and shipment state are not
// touched.
func (s *Service) RecordAudit(ctx context.Context, productID uint64, note string) error {
	caller := requestcontext.Caller(ctx)
	note = strings.TrimSpace(note)
	if note == "" {
		return s.reject(dErrors.New(dErrors.CodeInvalidInput, "audit note is required"))
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return err
	}
	active, err := s.identities.IsActiveAny(ctx, caller)
	if err != nil {
		return err
	}
	if !active {
		return s.reject(dErrors.New(dErrors.CodeUnauthorized, "caller is not an active stakeholder"))
	}
	return s.recorder.Record(ctx, audit.EntityProduct, fmt.Sprintf("%d", productID), audit.EventAuditNoteRecorded, note)
}

func (s *Service) reject(err error) error {
	s.metrics.RejectedOperations.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	return err
}

func roleTitle(r identity.Role) string {
	name := string(r)
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
