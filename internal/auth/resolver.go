package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// Principal is a user's effective authorisation: role names and the
// de-duplicated permission set granted through those roles.
type Principal struct {
	UserID      string
	Roles       []string
	Permissions []string

	names map[string]struct{}
	pairs map[resourceAction]struct{}
}

type resourceAction struct {
	resource string
	action   string
}

func newPrincipal(userID string, roles []Role, perms []Permission) *Principal {
	p := &Principal{
		UserID:      userID,
		Roles:       make([]string, 0, len(roles)),
		Permissions: make([]string, 0, len(perms)),
		names:       make(map[string]struct{}, len(perms)),
		pairs:       make(map[resourceAction]struct{}, len(perms)),
	}
	for _, r := range roles {
		p.Roles = append(p.Roles, r.Name)
	}
	for _, perm := range perms {
		if _, dup := p.names[perm.Name]; !dup {
			p.Permissions = append(p.Permissions, perm.Name)
			p.names[perm.Name] = struct{}{}
		}
		p.pairs[resourceAction{perm.Resource, perm.Action}] = struct{}{}
	}
	return p
}

// HasPermission reports whether some role grants a permission whose
// resource and action both match exactly.
func (p *Principal) HasPermission(resource, action string) bool {
	_, ok := p.pairs[resourceAction{resource, action}]
	return ok
}

// HasAny reports whether at least one of names is granted.
// An empty list is vacuously satisfied; callers that mean "no permission
// required" must say so explicitly rather than pass an empty list.
func (p *Principal) HasAny(names ...string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if _, ok := p.names[n]; ok {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of names is granted.
// An empty list is vacuously satisfied.
func (p *Principal) HasAll(names ...string) bool {
	for _, n := range names {
		if _, ok := p.names[n]; !ok {
			return false
		}
	}
	return true
}

// PrincipalLoader resolves a user's current roles and permissions from storage.
type PrincipalLoader interface {
	Load(ctx context.Context, userID string) (*Principal, error)
}

// RolePermissionResolver resolves effective permissions through the
// user -> role -> permission graph.
//
// The Get*/UserHas* methods fail closed: any resolution error is logged
// and reported as an empty set or false.
type RolePermissionResolver struct {
	repo   RBACRepository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewRolePermissionResolver creates a resolver. A positive cacheTTL enables
// a read-shadow cache for Resolve; Load always reads storage.
func NewRolePermissionResolver(repo RBACRepository, logger *slog.Logger, cacheTTL time.Duration) *RolePermissionResolver {
	r := &RolePermissionResolver{repo: repo, logger: logger}
	if cacheTTL > 0 {
		r.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return r
}

// Load reads the user's roles and permissions from storage and refreshes
// the cache entry. Token minting uses Load so claims are never stale.
func (r *RolePermissionResolver) Load(ctx context.Context, userID string) (*Principal, error) {
	roles, err := r.repo.UserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving roles: %w", ErrPersistence, err)
	}
	perms, err := r.repo.UserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving permissions: %w", ErrPersistence, err)
	}

	p := newPrincipal(userID, roles, perms)
	if r.cache != nil {
		r.cache.SetDefault(userID, p)
	}
	return p, nil
}

// Resolve returns the user's principal, from cache when enabled.
func (r *RolePermissionResolver) Resolve(ctx context.Context, userID string) (*Principal, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(userID); ok {
			return v.(*Principal), nil //nolint:forcetypeassert // only *Principal is stored
		}
	}
	return r.Load(ctx, userID)
}

// Invalidate drops any cached principal for userID.
func (r *RolePermissionResolver) Invalidate(userID string) {
	if r.cache != nil {
		r.cache.Delete(userID)
	}
}

// resolveOrDeny resolves the principal or logs and returns nil.
func (r *RolePermissionResolver) resolveOrDeny(ctx context.Context, userID string) *Principal {
	p, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Error("permission resolution failed, denying", "user_id", userID, "error", err)
		return nil
	}
	return p
}

// GetUserRoles returns the names of the user's roles.
func (r *RolePermissionResolver) GetUserRoles(ctx context.Context, userID string) []string {
	p := r.resolveOrDeny(ctx, userID)
	if p == nil {
		return []string{}
	}
	return p.Roles
}

// GetUserPermissions returns the de-duplicated permission names of the user.
func (r *RolePermissionResolver) GetUserPermissions(ctx context.Context, userID string) []string {
	p := r.resolveOrDeny(ctx, userID)
	if p == nil {
		return []string{}
	}
	return p.Permissions
}

// UserHasPermission reports whether the user holds resource:action.
func (r *RolePermissionResolver) UserHasPermission(ctx context.Context, userID, resource, action string) bool {
	p := r.resolveOrDeny(ctx, userID)
	return p != nil && p.HasPermission(resource, action)
}

// UserHasAnyPermission reports whether the user holds at least one of names.
func (r *RolePermissionResolver) UserHasAnyPermission(ctx context.Context, userID string, names ...string) bool {
	p := r.resolveOrDeny(ctx, userID)
	return p != nil && p.HasAny(names...)
}

// UserHasAllPermissions reports whether the user holds every one of names.
func (r *RolePermissionResolver) UserHasAllPermissions(ctx context.Context, userID string, names ...string) bool {
	p := r.resolveOrDeny(ctx, userID)
	return p != nil && p.HasAll(names...)
}
