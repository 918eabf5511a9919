package audit

import (
	"time"

	"github.com/google/uuid"

	dErrors "foodtrace/pkg/domain-errors"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance for the
	// traceability record: registrations, stage transitions, shipment
	// lifecycle changes. These require durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring who may act:
	// deactivations and admin transfers.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers advisory events useful for operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// EntityKind names the registry an event's entity ID belongs to.
type EntityKind string

const (
	EntityStakeholder EntityKind = "stakeholder"
	EntityProduct     EntityKind = "product"
	EntityShipment    EntityKind = "shipment"
)

// ParseEntityKind validates an entity kind from the transport layer.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case EntityStakeholder, EntityProduct, EntityShipment:
		return EntityKind(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown entity kind %q", s)
	}
}

// Event is the append-only notification record produced by every successful
// mutating call. It is the only mechanism by which external observers learn
// of state changes without polling. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	ID         uuid.UUID     `json:"id"`
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	EntityKind EntityKind    `json:"entityKind"`
	EntityID   string        `json:"entityId"`  // stakeholder identity, product id, or shipment id
	Actor      string        `json:"actor"`     // caller identity that performed the action
	Action     string        `json:"action"`    // short event tag, one of the Event* constants
	Detail     string        `json:"detail"`    // free-form context (advisory text, audit note, reason)
	RequestID  string        `json:"requestId"` // correlation ID from HTTP request context
}

// Tag is a short event name attached to every notification.
type Tag string

const (
	// Identity registry events
	EventStakeholderRegistered  Tag = "stakeholder_registered"
	EventStakeholderDeactivated Tag = "stakeholder_deactivated"
	EventStakeholderUpdated     Tag = "stakeholder_updated"
	EventAdminTransferred       Tag = "admin_transferred"

	// Product ledger events
	EventProductCreated  Tag = "product_created"
	EventStageAdvanced   Tag = "product_stage_advanced"
	EventProductConsumed Tag = "product_consumed"
	EventProductRetired  Tag = "product_deactivated"
	EventMarketAdvisory  Tag = "market_advisory"

	// Shipment ledger events
	EventShipmentCreated  Tag = "shipment_created"
	EventShipmentUpdated  Tag = "shipment_status_updated"
	EventShipmentCanceled Tag = "shipment_cancelled"
	EventDeliveryArrived  Tag = "shipment_delivered"
	EventDeliveryVerified Tag = "delivery_verified"

	// Aggregator events
	EventAuditNoteRecorded Tag = "audit_note_recorded"
)

// tagCategories maps each event tag to its category.
var tagCategories = map[Tag]EventCategory{
	EventStakeholderRegistered:  CategoryCompliance,
	EventStakeholderUpdated:     CategoryOperations,
	EventStakeholderDeactivated: CategorySecurity,
	EventAdminTransferred:       CategorySecurity,

	EventProductCreated:  CategoryCompliance,
	EventStageAdvanced:   CategoryCompliance,
	EventProductConsumed: CategoryCompliance,
	EventProductRetired:  CategoryCompliance,
	EventMarketAdvisory:  CategoryOperations,

	EventShipmentCreated:  CategoryCompliance,
	EventShipmentUpdated:  CategoryCompliance,
	EventShipmentCanceled: CategoryCompliance,
	EventDeliveryArrived:  CategoryCompliance,
	EventDeliveryVerified: CategoryCompliance,

	EventAuditNoteRecorded: CategoryCompliance,
}

// Category returns the EventCategory for this tag. Unknown tags default to
// CategoryOperations.
func (t Tag) Category() EventCategory {
	if cat, ok := tagCategories[t]; ok {
		return cat
	}
	return CategoryOperations
}
