package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore manages user lookups and the credential mutations the token flows
// need.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Find(ctx context.Context, id string) (*Role, error)
	Assign(ctx context.Context, assignment Assignment) error
	Unassign(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
}

// PermissionStore manages the permission catalog and role-permission joins.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, grants []Grant) error
}
