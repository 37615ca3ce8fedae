// Package policy implements auto-approval of permission requests by tool
// title, the coordinator's equivalent of the sandbox write-guard's
// role-scoped allow/deny matching applied to request_permission
// instead of filesystem paths.
package policy

import (
	"encoding/json"
	"strings"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

// preferredAllowKinds ranks the permission option kinds a policy should
// select when multiple are offered for an allowed tool title.
var preferredAllowKinds = []string{"allow_always", "allow_once", "allow"}

// AllowList auto-approves permission requests whose tool title matches one
// of a configured set of prefixes, and denies (passes through to a human)
// everything else. A title matching a Deny prefix is never auto-approved even if it
// also matches an allow prefix.
type AllowList struct {
	Allow []string
	Deny  []string
}

var _ coordinator.AutoApprovalPolicy = AllowList{}

// Decide implements coordinator.AutoApprovalPolicy. It returns ok=false
// (fall through to a human decision) unless toolTitle matches an allow
// prefix and not a deny prefix, in which case it selects the
// highest-preference option offered.
func (p AllowList) Decide(toolTitle string, rawInput json.RawMessage, options []coordinator.PermissionOption) (string, bool) {
	_ = rawInput
	lower := strings.ToLower(strings.TrimSpace(toolTitle))
	for _, deny := range p.Deny {
		if matchesPrefix(lower, deny) {
			return "", false
		}
	}
	allowed := false
	for _, allow := range p.Allow {
		if matchesPrefix(lower, allow) {
			allowed = true
			break
		}
	}
	if !allowed || len(options) == 0 {
		return "", false
	}
	for _, kind := range preferredAllowKinds {
		for _, opt := range options {
			if opt.Kind == kind {
				return opt.ID, true
			}
		}
	}
	return "", false
}

func matchesPrefix(lower, prefix string) bool {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	return prefix != "" && strings.HasPrefix(lower, prefix)
}
