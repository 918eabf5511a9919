package shipment

import (
	"time"

	dErrors "foodtrace/pkg/domain-errors"
)

// Status is one node in a shipment's lifecycle graph.
type Status string

const (
	StatusPreparing       Status = "preparing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
	StatusUnableToDeliver Status = "unable_to_deliver"
	StatusVerified        Status = "verified"
)

// ParseStatus validates a status string from the transport layer.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPreparing, StatusShipped, StatusDelivered, StatusCancelled, StatusUnableToDeliver, StatusVerified:
		return Status(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", s)
	}
}

// transitions is the directed transition set. Cancelled, Verified, and
// UnableToDeliver are terminal. Every status change, including cancellation,
// is checked against this set.
var transitions = map[Status][]Status{
	StatusPreparing: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusUnableToDeliver},
	StatusDelivered: {StatusVerified},
}

// CanTransition reports whether (from, to) is in the directed transition
// set.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// HistoryEntry is one step of a shipment's append-only history.
type HistoryEntry struct {
	Status          Status    `json:"status"`
	UpdaterIdentity string    `json:"updaterIdentity"`
	Timestamp       time.Time `json:"timestamp"`
	TrackingInfo    string    `json:"trackingInfo"`
	Location        string    `json:"location"`
}

// Shipment tracks one product movement between two participants.
//
// Invariants:
//   - a product has at most one shipment whose status is not Cancelled
//   - tracking numbers are injective across all shipments ever created
//   - the history status sequence is a walk of the transition set
type Shipment struct {
	ID             uint64         `json:"id"`
	ProductID      uint64         `json:"productId"`
	SenderIdentity string         `json:"senderIdentity"`
	Receiver       string         `json:"receiverIdentity"`
	TrackingNumber string         `json:"trackingNumber"`
	TransportMode  string         `json:"transportMode"`
	Status         Status         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastUpdated    time.Time      `json:"lastUpdated"`
	Active         bool           `json:"active"`
	History        []HistoryEntry `json:"history"`
}

// Participant reports whether identity is the sender or receiver.
func (s *Shipment) Participant(identity string) bool {
	return identity != "" && (identity == s.SenderIdentity || identity == s.Receiver)
}
