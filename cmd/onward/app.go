package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DenisZakharchuk/onward-sub002/internal/audit"
	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
	"github.com/DenisZakharchuk/onward-sub002/internal/events"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/config"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/database"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/logging"
	"github.com/DenisZakharchuk/onward-sub002/internal/store/postgres"
)

// stores holds the repositories for the configured database driver.
type stores struct {
	users  auth.UserRepository
	tokens auth.RefreshTokenStore
	rbac   auth.RBACRepository
	audit  audit.Repository
}

func newStores(db *database.DB) stores {
	if db.Driver() == database.DriverPostgres {
		return stores{
			users:  postgres.NewUserRepository(db.DB),
			tokens: postgres.NewTokenRepository(db.DB),
			rbac:   postgres.NewRBACRepository(db.DB),
			audit:  postgres.NewAuditRepository(db.DB),
		}
	}
	return stores{
		users:  auth.NewUserRepository(db.DB),
		tokens: auth.NewTokenRepository(db.DB),
		rbac:   auth.NewRBACRepository(db.DB),
		audit:  audit.NewSQLiteRepository(db.DB),
	}
}

// openDatabase opens the configured database and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Driver:       cfg.Driver,
		Path:         cfg.Path,
		WALMode:      cfg.WALMode,
		BusyTimeout:  cfg.BusyTimeout,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "driver", db.Driver())
	return db, nil
}

// authStack is the wired authentication core.
type authStack struct {
	hasher   *auth.PasswordHasher
	issuer   *auth.JWTIssuer
	resolver *auth.RolePermissionResolver
	rotation *auth.TokenRotationService
	service  *auth.Service
}

func newAuthStack(cfg *config.Config, st stores, recorder auth.EventRecorder, logger *slog.Logger) (*authStack, error) {
	sec := cfg.Security
	hasher := auth.NewPasswordHasher(auth.HashParams{
		Memory:      sec.Password.Memory,
		Iterations:  sec.Password.Iterations,
		Parallelism: sec.Password.Parallelism,
		SaltLength:  sec.Password.SaltLength,
		KeyLength:   sec.Password.KeyLength,
	})
	issuer := auth.NewJWTIssuer(sec.JWT.Secret, sec.JWT.Issuer, sec.JWT.Audience)
	resolver := auth.NewRolePermissionResolver(st.rbac, logger.With("component", "resolver"), sec.PermissionCacheTTL)

	rotation, err := auth.NewTokenRotationService(auth.RotationDeps{
		Store:    st.tokens,
		Users:    st.users,
		Resolver: resolver,
		Issuer:   issuer,
		Events:   recorder,
		Logger:   logger.With("component", "rotation"),
		Config: auth.RotationConfig{
			AccessTokenTTL:  sec.JWT.AccessTokenTTL,
			RefreshTokenTTL: sec.JWT.RefreshTokenTTL,
			TokenBytes:      sec.RefreshTokenBytes,
		},
	})
	if err != nil {
		return nil, err
	}

	service, err := auth.NewService(auth.ServiceDeps{
		Users:    st.users,
		Tokens:   st.tokens,
		RBAC:     st.rbac,
		Resolver: resolver,
		Rotation: rotation,
		Hasher:   hasher,
		Issuer:   issuer,
		Events:   recorder,
		Logger:   logger.With("component", "auth"),
		Config: auth.ServiceConfig{
			AccessTokenTTL: sec.JWT.AccessTokenTTL,
			DefaultRole:    sec.DefaultRole,
		},
	})
	if err != nil {
		return nil, err
	}

	return &authStack{
		hasher:   hasher,
		issuer:   issuer,
		resolver: resolver,
		rotation: rotation,
		service:  service,
	}, nil
}

// bootstrap seeds the RBAC catalogue and, on an empty database, the first
// admin account.
func bootstrap(ctx context.Context, cfg config.BootstrapConfig, st stores, hasher *auth.PasswordHasher, logger *slog.Logger) error {
	if err := auth.SeedRBAC(ctx, st.rbac, logger); err != nil {
		return fmt.Errorf("seeding rbac: %w", err)
	}
	if !cfg.Enabled || cfg.AdminEmail == "" {
		return nil
	}
	if _, err := auth.SeedAdmin(ctx, st.users, st.rbac, hasher, cfg.AdminEmail, cfg.AdminName, logger); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	return nil
}

// adminApp is the database-backed core used by the administrative
// commands. Security events are written to the audit log only.
type adminApp struct {
	cfg    *config.Config
	log    *logging.Logger
	db     *database.DB
	stores stores
	stack  *authStack
}

func openAdminApp(ctx context.Context, opts *rootOptions) (*adminApp, error) {
	cfg, log, err := opts.load()
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	st := newStores(db)
	recorder := events.NewFanout(log.Slog()).Add("audit", events.NewAuditSink(st.audit, audit.SourceCLI))
	stack, err := newAuthStack(cfg, st, recorder, log.Slog())
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	if err := auth.SeedRBAC(ctx, st.rbac, log.Slog()); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("seeding rbac: %w", err)
	}

	return &adminApp{cfg: cfg, log: log, db: db, stores: st, stack: stack}, nil
}

func (a *adminApp) Close() error {
	return a.db.Close()
}

// userID resolves an account by email.
func (a *adminApp) userID(ctx context.Context, email string) (string, error) {
	user, err := a.stores.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", fmt.Errorf("finding user %s: %w", email, err)
	}
	return user.ID, nil
}
