package auth

import (
	"sort"
	"strings"
)

const (
	// ActionManage implies every action on its resource.
	ActionManage = "manage"
	// Wildcard matches any resource or action when granted literally.
	Wildcard = "*"
)

// Grant is one resolved (resource, action) capability.
type Grant struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// String renders the flat wire form carried in access-token claims.
func (g Grant) String() string {
	return g.Resource + ":" + g.Action
}

// ParseGrant parses the flat "resource:action" form.
func ParseGrant(raw string) (Grant, bool) {
	resource, action, ok := strings.Cut(raw, ":")
	if !ok || resource == "" || action == "" {
		return Grant{}, false
	}
	return Grant{Resource: resource, Action: action}, true
}

// EncodeGrants renders grants into their flat wire form, sorted for stable
// token payloads.
func EncodeGrants(grants []Grant) []string {
	if len(grants) == 0 {
		return nil
	}
	out := make([]string, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.String())
	}
	sort.Strings(out)
	return out
}

// ParseGrants decodes the flat wire form, dropping malformed entries.
func ParseGrants(raw []string) []Grant {
	var grants []Grant
	for _, r := range raw {
		if g, ok := ParseGrant(r); ok {
			grants = append(grants, g)
		}
	}
	return grants
}

// Authorize reports whether the grant set allows the required (resource,
// action): an exact match, a manage grant on the resource, or the literal
// wildcard grant. Resource names never prefix-match.
func Authorize(grants []Grant, resource, action string) bool {
	for _, g := range grants {
		if g.Resource == Wildcard && g.Action == Wildcard {
			return true
		}
		if g.Resource != resource {
			continue
		}
		if g.Action == action || g.Action == ActionManage {
			return true
		}
	}
	return false
}
