package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campuslib/internal/entities"
)

// DefaultAuditRetentionDays applies when a task carries no retention.
const DefaultAuditRetentionDays = 90

// AuditEventCleaner deletes expired audit events and records that it did.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
	Log(event *entities.AuditEvent) error
}

// CleanupAuditEventsTask removes audit events older than RetentionDays.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) retention() (days int, d time.Duration) {
	days = t.RetentionDays
	if days <= 0 {
		days = DefaultAuditRetentionDays
	}
	return days, time.Duration(days) * 24 * time.Hour
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_audit_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

var errNoCleaner = errors.New("cleanup audit events: no cleaner configured")

// CleanupAuditEventsProcessor prunes the trail and then records the prune
// in it. Only the delete is retried; a failed record is logged.
func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return errNoCleaner
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		days, keep := task.retention()
		deleted, err := cleaner.DeleteOldEvents(keep)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}
		log.Printf("[TASK] audit cleanup removed %d events (retention %dd)", deleted, days)

		record := &entities.AuditEvent{
			EventType:   entities.AuditEventCleanup,
			Action:      "audit_cleanup",
			EntityType:  "audit_event",
			Status:      entities.AuditStatusSuccess,
			Description: fmt.Sprintf("deleted %d events older than %d days", deleted, days),
		}
		if err := cleaner.Log(record); err != nil {
			log.Printf("[TASK ERROR] audit cleanup not recorded: %v", err)
		}
		return nil
	}
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}
