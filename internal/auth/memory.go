package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"schoolhub.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by tests and single-node
// development setups without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	userByEmail map[string]string
	roles       map[string]*Role
	assignments map[string][]Assignment
	rolePerms   map[string][]Permission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		userByEmail: make(map[string]string),
		roles:       make(map[string]*Role),
		assignments: make(map[string][]Assignment),
		rolePerms:   make(map[string][]Permission),
	}
}

func (s *MemoryStore) Users(context.Context) UserStore             { return s }
func (s *MemoryStore) Roles(context.Context) RoleStore             { return memoryRoleView{s} }
func (s *MemoryStore) Permissions(context.Context) PermissionStore { return s }

// memoryRoleView disambiguates RoleStore.Find from UserStore.Find, which
// share a name but not a signature.
type memoryRoleView struct{ *MemoryStore }

func (v memoryRoleView) Find(ctx context.Context, id string) (*Role, error) {
	return v.FindRole(ctx, id)
}

// CreateUser seeds a user, assigning an id when absent.
func (s *MemoryStore) CreateUser(u *User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	cp := *u
	s.users[u.ID] = &cp
	s.userByEmail[cp.Email] = u.ID
	return u
}

// CreateRole seeds a role, assigning an id when absent.
func (s *MemoryStore) CreateRole(r *Role) *Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	s.roles[r.ID] = &cp
	return r
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkEmailVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) FindRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Assign(ctx context.Context, assignment Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments[assignment.UserID] {
		if a.RoleID == assignment.RoleID {
			return nil
		}
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	s.assignments[assignment.UserID] = append(s.assignments[assignment.UserID], assignment)
	return nil
}

func (s *MemoryStore) Unassign(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.assignments[userID]
	kept := current[:0]
	for _, a := range current {
		if a.RoleID != roleID {
			kept = append(kept, a)
		}
	}
	s.assignments[userID] = kept
	return nil
}

func (s *MemoryStore) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assignment, len(s.assignments[userID]))
	copy(out, s.assignments[userID])
	return out, nil
}

func (s *MemoryStore) Ensure(ctx context.Context, perms []Permission) error {
	return nil
}

func (s *MemoryStore) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, len(s.rolePerms[roleID]))
	copy(out, s.rolePerms[roleID])
	return out, nil
}

func (s *MemoryStore) SetForRole(ctx context.Context, roleID string, grants []Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms := make([]Permission, 0, len(grants))
	for _, g := range grants {
		perms = append(perms, Permission{
			ID:       ids.New(),
			Resource: g.Resource,
			Action:   g.Action,
		})
	}
	s.rolePerms[roleID] = perms
	return nil
}
