package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

// AuditLog records authentication events.
type AuditLog interface {
	Record(ctx context.Context, event models.AuthEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuthEvent, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// NopAudit discards events. Used when no Postgres URI is configured.
type NopAudit struct{}

func (NopAudit) Record(context.Context, models.AuthEvent) error { return nil }

func (NopAudit) ListByUser(context.Context, string, int) ([]models.AuthEvent, error) {
	return []models.AuthEvent{}, nil
}

func (NopAudit) Cleanup(context.Context, time.Time) (int64, error) { return 0, nil }

// PostgresAuditLog stores events in the auth_events table.
type PostgresAuditLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresAuditLog(db *sql.DB) *PostgresAuditLog {
	return &PostgresAuditLog{db: db, now: time.Now}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (a *PostgresAuditLog) Record(ctx context.Context, event models.AuthEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = a.now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO auth_events (id, created_at, user_id, email, event, ip_address, user_agent, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.CreatedAt, nullString(event.UserID), nullString(event.Email), string(event.Event),
		nullString(event.IPAddress), nullString(event.UserAgent), nullString(event.Detail))
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

// ListByUser returns the most recent events for userID, newest first.
func (a *PostgresAuditLog) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuthEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, created_at, user_id, email, event, ip_address, user_agent, detail
		FROM auth_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w", err)
	}
	defer rows.Close()

	events := []models.AuthEvent{}
	for rows.Next() {
		var (
			e                             models.AuthEvent
			uid, email, ip, agent, detail sql.NullString
			event                         string
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &uid, &email, &event, &ip, &agent, &detail); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		e.UserID = uid.String
		e.Email = email.String
		e.Event = models.AuthEventType(event)
		e.IPAddress = ip.String
		e.UserAgent = agent.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Cleanup deletes events created before olderThan.
func (a *PostgresAuditLog) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM auth_events WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete auth events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Time("before", olderThan).Msg("auth events cleaned up")
	}
	return n, nil
}
