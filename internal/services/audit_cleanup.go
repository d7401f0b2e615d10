package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const DefaultAuditRetention = 90 * 24 * time.Hour

// AuditCleanup periodically deletes audit events older than the retention window.
type AuditCleanup struct {
	audit     AuditLog
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

func NewAuditCleanup(audit AuditLog, retention time.Duration) *AuditCleanup {
	if retention <= 0 {
		retention = DefaultAuditRetention
	}
	return &AuditCleanup{audit: audit, retention: retention, now: time.Now, cron: cron.New()}
}

// RunOnce deletes everything older than now minus the retention window.
func (c *AuditCleanup) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return c.audit.Cleanup(ctx, c.now().Add(-c.retention))
}

// Start runs one cleanup immediately, then on schedule ("@every 1h", a
// standard five-field expression, and so on).
func (c *AuditCleanup) Start(schedule string) error {
	if _, err := c.cron.AddFunc(schedule, func() {
		if _, err := c.RunOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("audit cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid audit cleanup schedule %q: %w", schedule, err)
	}

	if _, err := c.RunOnce(context.Background()); err != nil {
		log.Error().Err(err).Msg("initial audit cleanup failed")
	}
	c.cron.Start()
	log.Info().Str("schedule", schedule).Dur("retention", c.retention).Msg("audit cleanup scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (c *AuditCleanup) Stop() {
	<-c.cron.Stop().Done()
}
