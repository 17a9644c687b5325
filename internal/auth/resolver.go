package auth

import (
	"context"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultResolverTTL = time.Minute

// Resolver computes the effective permission set of a user by walking the
// user's role assignments, deduplicating the grants of every role. Results
// are cached per user for a short TTL so hot request paths avoid the
// assignment walk; mutation endpoints invalidate explicitly.
type Resolver struct {
	store Store
	cache *gocache.Cache
}

func NewResolver(store Store, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultResolverTTL
	}
	return &Resolver{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Resolve returns the deduplicated, sorted grants of the user's roles.
// A user with no assignments resolves to an empty set, which is cached too.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]Grant, error) {
	if cached, ok := r.cache.Get(userID); ok {
		return cached.([]Grant), nil
	}

	assignments, err := r.store.Roles(ctx).Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[Grant]struct{})
	for _, a := range assignments {
		perms, err := r.store.Permissions(ctx).PermissionsForRole(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			seen[Grant{Resource: p.Resource, Action: p.Action}] = struct{}{}
		}
	}

	grants := make([]Grant, 0, len(seen))
	for g := range seen {
		grants = append(grants, g)
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Resource != grants[j].Resource {
			return grants[i].Resource < grants[j].Resource
		}
		return grants[i].Action < grants[j].Action
	})

	r.cache.SetDefault(userID, grants)
	return grants, nil
}

// Invalidate drops one user's cached grants. Called after assignment changes.
func (r *Resolver) Invalidate(userID string) {
	r.cache.Delete(userID)
}

// InvalidateAll drops every cached entry. Called after a role's permission
// set changes, since there is no reverse role-to-users index.
func (r *Resolver) InvalidateAll() {
	r.cache.Flush()
}
