package product

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"foodtrace/internal/identity"
	"foodtrace/internal/market"
	dErrors "foodtrace/pkg/domain-errors"
)

// Stage is one step in a product's linear lifecycle.
//
// Invariants:
//   - the stage only advances by exactly one step per call
//   - Consumed is reachable only from Retail via the terminal consume
//     action, never via the ordered-advance path
type Stage int

const (
	StageFarm Stage = iota
	StageProcessing
	StageDistribution
	StageRetail
	StageConsumed
)

var stageNames = map[Stage]string{
	StageFarm:         "farm",
	StageProcessing:   "processing",
	StageDistribution: "distribution",
	StageRetail:       "retail",
	StageConsumed:     "consumed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStage validates a stage name from the transport layer.
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == name {
			return stage, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown stage %q", name)
}

// stageRoles maps each advanceable stage to the role that owns it. Consumed
// has no owning role; it is reached by the terminal consume action which
// carries no role restriction.
var stageRoles = map[Stage]identity.Role{
	StageFarm:         identity.RoleFarmer,
	StageProcessing:   identity.RoleProcessor,
	StageDistribution: identity.RoleDistributor,
	StageRetail:       identity.RoleRetailer,
}

// RoleFor returns the role that owns a stage and whether one exists.
func RoleFor(stage Stage) (identity.Role, bool) {
	role, ok := stageRoles[stage]
	return role, ok
}

// StageRecord captures who moved the product into a stage and under what
// market conditions.
type StageRecord struct {
	Stage          Stage          `json:"stage"`
	ActorIdentity  string         `json:"actorIdentity"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           string         `json:"data"`
	DataHash       string         `json:"dataHash"`
	MarketSnapshot market.Reading `json:"marketSnapshot"`
}

// Product is one tracked good. IDs are numeric and monotonically assigned;
// neither IDs nor batch numbers are ever recycled, including after
// deactivation.
type Product struct {
	ID             uint64        `json:"id"`
	Name           string        `json:"name"`
	BatchNumber    string        `json:"batchNumber"`
	FarmerIdentity string        `json:"farmerIdentity"`
	CreatedAt      time.Time     `json:"createdAt"`
	Stage          Stage         `json:"stage"`
	Active         bool          `json:"active"`
	ContentHash    string        `json:"contentHash"`
	EstimatedPrice float64       `json:"estimatedPrice"`
	Location       string        `json:"location"`
	Records        []StageRecord `json:"records"`
}

// RecordFor returns the stage record for a stage, if the product reached it.
func (p *Product) RecordFor(stage Stage) (StageRecord, bool) {
	for _, rec := range p.Records {
		if rec.Stage == stage {
			return rec, true
		}
	}
	return StageRecord{}, false
}

// HashData returns the hex SHA-256 digest recorded for free-form stage data.
func HashData(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
