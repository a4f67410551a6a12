package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/DenisZakharchuk/onward-sub002/internal/audit"
)

var auditRowColumns = []string{"id", "action", "entity_type", "entity_id", "user_id", "source",
	"ip_address", "user_agent", "details", "created_at"}

func TestAuditRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectExec("insert into audit_logs").
		WithArgs(sqlmock.AnyArg(), "token_reuse_detected", "token_family", "fam-1", "usr-1", audit.SourceAPI,
			"203.0.113.9", nil, `{"revoked":2}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log := &audit.AuditLog{
		Action:     "token_reuse_detected",
		EntityType: "token_family",
		EntityID:   "fam-1",
		UserID:     "usr-1",
		Source:     audit.SourceAPI,
		IPAddress:  "203.0.113.9",
		Details:    map[string]any{"revoked": 2},
	}
	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == "" || log.CreatedAt.IsZero() {
		t.Errorf("Create() should fill ID and CreatedAt, got %+v", log)
	}
}

func TestAuditRepository_List_Filtered(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("select count\\(\\*\\) from audit_logs where action = \\$1 and user_id = \\$2").
		WithArgs("login_failed", "usr-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("from audit_logs where action = \\$1 and user_id = \\$2 order by created_at desc limit \\$3 offset \\$4").
		WithArgs("login_failed", "usr-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(auditRowColumns).
			AddRow("aud-1", "login_failed", "user", "usr-1", "usr-1", audit.SourceAPI,
				"203.0.113.9", "curl/8", []byte(`{"reason":"bad_password"}`), now))

	result, err := repo.List(context.Background(), audit.Filter{Action: "login_failed", UserID: "usr-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Logs) != 1 || result.Limit != 50 {
		t.Fatalf("List() = %+v", result)
	}
	got := result.Logs[0]
	if got.Details["reason"] != "bad_password" || !got.CreatedAt.Equal(now) {
		t.Errorf("List()[0] = %+v", got)
	}
}

func TestAuditRepository_List_ClampsLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectQuery("select count\\(\\*\\) from audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("limit \\$1 offset \\$2").
		WithArgs(200, 0).
		WillReturnRows(sqlmock.NewRows(auditRowColumns))

	result, err := repo.List(context.Background(), audit.Filter{Limit: 5000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 || result.Offset != 0 || len(result.Logs) != 0 {
		t.Errorf("List() = %+v", result)
	}
}
