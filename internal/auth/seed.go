package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// Built-in role names.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultPermissions is the permission catalogue created by SeedRBAC.
var DefaultPermissions = []Permission{
	{Resource: "users", Action: "create", Description: "Create user accounts"},
	{Resource: "users", Action: "read", Description: "View user accounts"},
	{Resource: "users", Action: "update", Description: "Edit user accounts"},
	{Resource: "users", Action: "disable", Description: "Enable or disable user accounts"},
	{Resource: "roles", Action: "read", Description: "View roles"},
	{Resource: "roles", Action: "assign", Description: "Assign roles to users"},
	{Resource: "sessions", Action: "read", Description: "View own sessions"},
	{Resource: "sessions", Action: "revoke", Description: "Revoke own sessions"},
	{Resource: "audit", Action: "read", Description: "View the audit log"},
}

// defaultRoles maps built-in roles to the permission names they receive.
// A nil list means every catalogue permission.
var defaultRoles = []struct {
	name        string
	description string
	permissions []string
}{
	{RoleAdmin, "Full administrative access", nil},
	{RoleUser, "Standard account", []string{"sessions:read", "sessions:revoke"}},
}

// SeedRBAC creates the permission catalogue and the built-in roles.
// It is idempotent: existing rows are reused and grants are re-applied.
func SeedRBAC(ctx context.Context, repo RBACRepository, logger *slog.Logger) error {
	byName := make(map[string]*Permission, len(DefaultPermissions))
	for _, p := range DefaultPermissions {
		perm := p
		err := repo.CreatePermission(ctx, &perm)
		switch {
		case err == nil:
			logger.Debug("permission created", "permission", perm.Name)
		case errors.Is(err, ErrPermissionExists):
			existing, err := repo.GetPermissionByName(ctx, PermissionName(p.Resource, p.Action))
			if err != nil {
				return fmt.Errorf("loading permission %s: %w", PermissionName(p.Resource, p.Action), err)
			}
			perm = *existing
		default:
			return fmt.Errorf("seeding permission %s: %w", PermissionName(p.Resource, p.Action), err)
		}
		byName[perm.Name] = &perm
	}

	for _, def := range defaultRoles {
		role := &Role{Name: def.name, Description: def.description}
		err := repo.CreateRole(ctx, role)
		if errors.Is(err, ErrRoleExists) {
			role, err = repo.GetRoleByName(ctx, def.name)
		}
		if err != nil {
			return fmt.Errorf("seeding role %s: %w", def.name, err)
		}

		names := def.permissions
		if names == nil {
			for name := range byName {
				names = append(names, name)
			}
		}
		for _, name := range names {
			perm, ok := byName[name]
			if !ok {
				return fmt.Errorf("seeding role %s: unknown permission %s", def.name, name)
			}
			if err := repo.GrantPermission(ctx, role.ID, perm.ID); err != nil {
				return fmt.Errorf("seeding role %s: %w", def.name, err)
			}
		}
	}

	logger.Info("rbac catalogue seeded", "permissions", len(byName), "roles", len(defaultRoles))
	return nil
}

// SeedAdmin creates the first admin account if no users exist.
// The generated password is logged once and must be changed immediately.
// Returns the generated password (empty string if seeding was skipped).
func SeedAdmin(ctx context.Context, users UserRepository, rbac RBACRepository, hasher *PasswordHasher, email, fullName string, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	addr, err := validateEmail(email)
	if err != nil {
		return "", fmt.Errorf("seed admin email: %w", err)
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := hasher.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	if fullName == "" {
		fullName = "Administrator"
	}
	admin := &User{
		Email:        addr,
		FullName:     fullName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	role, err := rbac.GetRoleByName(ctx, RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("finding admin role: %w", err)
	}
	if err := rbac.AssignRole(ctx, admin.ID, role.ID); err != nil {
		return "", fmt.Errorf("assigning admin role: %w", err)
	}

	logger.Warn("seed admin account created",
		"email", addr,
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
