package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

var _ auth.RBACRepository = (*RBACRepository)(nil)

// RBACRepository implements auth.RBACRepository on PostgreSQL.
type RBACRepository struct {
	db *sql.DB
}

// NewRBACRepository creates a PostgreSQL RBAC repository.
func NewRBACRepository(db *sql.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// UserRoles returns the roles assigned to a user, ordered by name.
func (r *RBACRepository) UserRoles(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		join users u on u.id = ur.user_id and u.is_active = true
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user roles: %w", err)
	}
	defer rows.Close()

	roles := []auth.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user roles: %w", err)
	}
	return roles, nil
}

// UserPermissions returns the distinct permissions granted through the
// user's roles, ordered by name.
func (r *RBACRepository) UserPermissions(ctx context.Context, userID string) ([]auth.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.resource, p.action, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		join user_roles ur on ur.role_id = rp.role_id
		join users u on u.id = ur.user_id and u.is_active = true
		where ur.user_id = $1
		order by p.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user permissions: %w", err)
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user permissions: %w", err)
	}
	return perms, nil
}

// CreateRole inserts a role. The ID is generated if empty.
func (r *RBACRepository) CreateRole(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		insert into roles (id, name, description, created_at) values ($1, $2, $3, $4)
	`, role.ID, role.Name, role.Description, role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrRoleExists
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// GetRoleByName retrieves a role by name.
func (r *RBACRepository) GetRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	return scanRole(r.db.QueryRowContext(ctx,
		`select id, name, description, created_at from roles where name = $1`, name))
}

// ListRoles returns all roles ordered by name.
func (r *RBACRepository) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, `select id, name, description, created_at from roles order by name`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []auth.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}

// CreatePermission inserts a permission. The name defaults to "resource:action".
func (r *RBACRepository) CreatePermission(ctx context.Context, perm *auth.Permission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if perm.Name == "" {
		perm.Name = auth.PermissionName(perm.Resource, perm.Action)
	}
	perm.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		insert into permissions (id, name, resource, action, description, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, perm.ID, perm.Name, perm.Resource, perm.Action, perm.Description, perm.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrPermissionExists
		}
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

// GetPermissionByName retrieves a permission by name.
func (r *RBACRepository) GetPermissionByName(ctx context.Context, name string) (*auth.Permission, error) {
	return scanPermission(r.db.QueryRowContext(ctx, `
		select id, name, resource, action, description, created_at from permissions where name = $1
	`, name))
}

// GrantPermission links a permission to a role. Granting twice is a no-op.
func (r *RBACRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id) values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("granting permission: %w", auth.ErrPermissionNotFound)
		}
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}

// AssignRole links a role to a user. Assigning twice is a no-op.
func (r *RBACRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id) values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("assigning role: %w", auth.ErrUserNotFound)
		}
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

// UnassignRole removes a role from a user.
func (r *RBACRepository) UnassignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx, `delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("unassigning role: %w", err)
	}
	return nil
}

func scanRole(s scanner) (*auth.Role, error) {
	var role auth.Role
	if err := s.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrRoleNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	role.CreatedAt = role.CreatedAt.UTC()
	return &role, nil
}

func scanPermission(s scanner) (*auth.Permission, error) {
	var p auth.Permission
	if err := s.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("scanning permission: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
