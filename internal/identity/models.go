package identity

import (
	"time"

	dErrors "foodtrace/pkg/domain-errors"
)

// Role is the single capacity a live registration acts in. A stakeholder
// holds exactly one role at a time; changing roles requires deactivation and
// re-registration (role migration).
type Role string

const (
	RoleFarmer      Role = "farmer"
	RoleProcessor   Role = "processor"
	RoleDistributor Role = "distributor"
	RoleRetailer    Role = "retailer"
)

// ParseRole validates a role string from the transport layer.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleFarmer, RoleProcessor, RoleDistributor, RoleRetailer:
		return Role(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", s)
	}
}

// Stakeholder is one registration of an identity. Deactivated registrations
// are retained (soft delete) so historical actors remain resolvable and
// business licenses stay injective across all registrations ever created.
//
// Invariants:
//   - at most one live registration per identity at a time
//   - BusinessLicense unique across live and historical registrations
type Stakeholder struct {
	Identity        string    `json:"identity"`
	Role            Role      `json:"role"`
	BusinessName    string    `json:"businessName"`
	BusinessLicense string    `json:"businessLicense"`
	Location        string    `json:"location"`
	Certifications  []string  `json:"certifications"`
	Active          bool      `json:"active"`
	RegisteredAt    time.Time `json:"registeredAt"`
	LastActivity    time.Time `json:"lastActivity"`
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Identity        string
	Role            Role
	BusinessName    string
	BusinessLicense string
	Location        string
	Certifications  []string
}

// UpdateInput carries the mutable registration fields. Empty fields are left
// unchanged.
type UpdateInput struct {
	BusinessName   string
	Location       string
	Certifications []string
}
