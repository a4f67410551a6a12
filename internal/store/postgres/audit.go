package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/DenisZakharchuk/onward-sub002/internal/audit"
)

var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository implements audit.Repository on PostgreSQL.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a PostgreSQL audit log repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit entry. The ID and CreatedAt are generated if empty.
func (r *AuditRepository) Create(ctx context.Context, log *audit.AuditLog) error {
	details, err := audit.Prepare(log)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		insert into audit_logs (id, action, entity_type, entity_id, user_id, source,
			ip_address, user_agent, details, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, log.ID, log.Action, log.EntityType,
		nullIfEmpty(log.EntityID), nullIfEmpty(log.UserID), log.Source,
		nullIfEmpty(log.IPAddress), nullIfEmpty(log.UserAgent),
		details, log.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns matching audit entries, most recent first.
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	add := func(column string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf("%s $%d", column, len(args)))
	}
	if filter.Action != "" {
		add("action =", filter.Action)
	}
	if filter.EntityType != "" {
		add("entity_type =", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id =", filter.EntityID)
	}
	if filter.UserID != "" {
		add("user_id =", filter.UserID)
	}
	if !filter.Since.IsZero() {
		add("created_at >=", filter.Since.UTC())
	}

	where := ""
	if len(conditions) > 0 {
		where = "where " + strings.Join(conditions, " and ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "select count(*) from audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := fmt.Sprintf(`
		select id, action, entity_type, entity_id, user_id, source, ip_address, user_agent, details, created_at
		from audit_logs %s order by created_at desc limit $%d offset $%d
	`, where, len(args)+1, len(args)+2) //nolint:gosec // WHERE built from parameterised conditions
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []audit.AuditLog{}
	for rows.Next() {
		var createdAt time.Time
		log, err := audit.ScanRow(rows, &createdAt)
		if err != nil {
			return nil, err
		}
		log.CreatedAt = createdAt.UTC()
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &audit.ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
