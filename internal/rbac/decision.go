package rbac

// DenyReason explains why the kernel refused an operation.
type DenyReason string

const (
	DenyUnknownUser            DenyReason = "unknown_user"
	DenyUnknownEntity          DenyReason = "unknown_entity"
	DenyNoRoles                DenyReason = "no_roles"
	DenyInsufficientPermission DenyReason = "insufficient_permission"
)

// Decision is the outcome of an authorization check. A deny is a value,
// not an error: errors are reserved for infrastructure failures.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Reason    DenyReason `json:"reason,omitempty"`
	UserID    string     `json:"user_id"`
	EntityID  string     `json:"entity_id,omitempty"`
	Entity    string     `json:"entity"`
	Operation Operation  `json:"operation"`
	Roles     []string   `json:"roles,omitempty"`
	Grant     Grant      `json:"grant"`
}

func deny(d Decision, reason DenyReason) Decision {
	d.Allowed = false
	d.Reason = reason
	return d
}

// CheckResult pairs a decision with the validated payload when the combined
// authorize-and-validate path succeeds.
type CheckResult struct {
	Decision     Decision       `json:"decision"`
	Payload      map[string]any `json:"payload,omitempty"`
	UniqueProbes []string       `json:"unique_probes,omitempty"`
}
