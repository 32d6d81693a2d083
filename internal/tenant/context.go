package tenant

import "remittance_system/internal/config"

// Mode selects how tenants map to databases.
type Mode string

const (
	ModeSingleStore    Mode = config.ModeSingleStore
	ModePerTenantStore Mode = config.ModePerTenantStore
)

// SharedRoutingKey is the routing key of the shared store in single-store mode.
const SharedRoutingKey = "shared"

// Context is the request-scoped result of tenant resolution.
type Context struct {
	Code       string // canonical uppercase code
	TenantID   uint   // registry id, used for row-level scoping
	RoutingKey string // selects the cached connection
	ConnString string // DSN of the tenant's store
	Mode       Mode
}

// Summary is the resolution result exposed to collaborators.
type Summary struct {
	Code      string `json:"code"`
	NumericID *uint  `json:"numeric_id,omitempty"`
	Mode      Mode   `json:"mode"`
}

// Summary hides the numeric id in per-tenant-store mode, where it is not a
// reliable global key.
func (c Context) Summary() Summary {
	s := Summary{Code: c.Code, Mode: c.Mode}
	if c.Mode == ModeSingleStore {
		id := c.TenantID
		s.NumericID = &id
	}
	return s
}
