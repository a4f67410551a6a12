package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RBACRepository reads and maintains the user -> role -> permission graph.
type RBACRepository interface {
	UserRoles(ctx context.Context, userID string) ([]Role, error)
	UserPermissions(ctx context.Context, userID string) ([]Permission, error)

	CreateRole(ctx context.Context, role *Role) error
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreatePermission(ctx context.Context, perm *Permission) error
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error
}

// SQLiteRBACRepository implements RBACRepository using SQLite.
type SQLiteRBACRepository struct {
	db *sql.DB
}

// NewRBACRepository creates a new SQLite-backed RBAC repository.
func NewRBACRepository(db *sql.DB) *SQLiteRBACRepository {
	return &SQLiteRBACRepository{db: db}
}

// UserRoles returns the roles assigned to a user, ordered by name. A
// deactivated user holds no roles.
func (r *SQLiteRBACRepository) UserRoles(ctx context.Context, userID string) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.description, r.created_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 JOIN users u ON u.id = ur.user_id AND u.is_active = 1
		 WHERE ur.user_id = ?
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
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

// UserPermissions returns the distinct permissions granted to a user through
// any of their roles, ordered by name. A deactivated user holds none.
func (r *SQLiteRBACRepository) UserPermissions(ctx context.Context, userID string) ([]Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.name, p.resource, p.action, p.description, p.created_at
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 JOIN users u ON u.id = ur.user_id AND u.is_active = 1
		 WHERE ur.user_id = ?
		 ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
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
func (r *SQLiteRBACRepository) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO roles (id, name, description, created_at) VALUES (?, ?, ?, ?)",
		role.ID, role.Name, role.Description, formatTime(role.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleExists
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// GetRoleByName retrieves a role by its unique name.
func (r *SQLiteRBACRepository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return scanRole(r.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at FROM roles WHERE name = ?", name))
}

// ListRoles returns all roles ordered by name.
func (r *SQLiteRBACRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, description, created_at FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
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

// CreatePermission inserts a permission. The ID is generated if empty and
// the name defaults to "resource:action".
func (r *SQLiteRBACRepository) CreatePermission(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if perm.Name == "" {
		perm.Name = PermissionName(perm.Resource, perm.Action)
	}
	perm.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, name, resource, action, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		perm.ID, perm.Name, perm.Resource, perm.Action, perm.Description, formatTime(perm.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPermissionExists
		}
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

// GetPermissionByName retrieves a permission by its unique name.
func (r *SQLiteRBACRepository) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	return scanPermission(r.db.QueryRowContext(ctx,
		"SELECT id, name, resource, action, description, created_at FROM permissions WHERE name = ?", name))
}

// GrantPermission links a permission to a role. Granting twice is a no-op.
func (r *SQLiteRBACRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)",
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}

// AssignRole links a role to a user. Assigning twice is a no-op.
func (r *SQLiteRBACRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)",
		userID, roleID)
	if err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

// UnassignRole removes a role from a user.
func (r *SQLiteRBACRepository) UnassignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = ? AND role_id = ?", userID, roleID)
	if err != nil {
		return fmt.Errorf("unassigning role: %w", err)
	}
	return nil
}

func scanRole(s scanner) (*Role, error) {
	var role Role
	var createdAt string
	if err := s.Scan(&role.ID, &role.Name, &role.Description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	role.CreatedAt = parseTime(createdAt)
	return &role, nil
}

func scanPermission(s scanner) (*Permission, error) {
	var p Permission
	var createdAt string
	if err := s.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("scanning permission: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
