package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

func newMockAudit(t *testing.T) (*PostgresAuditLog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresAuditLog(db), mock
}

func TestPostgresAuditLog_Record(t *testing.T) {
	audit, mock := newMockAudit(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	audit.now = func() time.Time { return now }

	mock.ExpectExec(`INSERT INTO auth_events`).
		WithArgs(sqlmock.AnyArg(), now, "65f0c0ffee0000000000abcd", "ada@example.com", "login_failure",
			"10.0.0.1", sql.NullString{}, "wrong password").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := audit.Record(context.Background(), models.AuthEvent{
		UserID:    "65f0c0ffee0000000000abcd",
		Email:     "ada@example.com",
		Event:     models.EventLoginFailure,
		IPAddress: "10.0.0.1",
		Detail:    "wrong password",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditLog_RecordError(t *testing.T) {
	audit, mock := newMockAudit(t)
	mock.ExpectExec(`INSERT INTO auth_events`).WillReturnError(errors.New("relation does not exist"))

	err := audit.Record(context.Background(), models.AuthEvent{Event: models.EventLogout})
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestPostgresAuditLog_ListByUser(t *testing.T) {
	audit, mock := newMockAudit(t)
	id := uuid.New()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "created_at", "user_id", "email", "event", "ip_address", "user_agent", "detail"}).
		AddRow(id.String(), at, "u1", "ada@example.com", "login_success", "10.0.0.1", nil, nil)
	mock.ExpectQuery(`SELECT (.+) FROM auth_events`).
		WithArgs("u1", 50).
		WillReturnRows(rows)

	events, err := audit.ListByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, models.EventLoginSuccess, events[0].Event)
	assert.Empty(t, events[0].UserAgent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditLog_Cleanup(t *testing.T) {
	audit, mock := newMockAudit(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM auth_events WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := audit.Cleanup(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditCleanup_RunOnceUsesRetention(t *testing.T) {
	audit, mock := newMockAudit(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	job := NewAuditCleanup(audit, 30*24*time.Hour)
	job.now = func() time.Time { return now }

	mock.ExpectExec(`DELETE FROM auth_events`).
		WithArgs(now.Add(-30 * 24 * time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditCleanup_RejectsBadSchedule(t *testing.T) {
	job := NewAuditCleanup(NopAudit{}, 0)
	assert.Error(t, job.Start("every now and then"))
	job.Stop()
}
