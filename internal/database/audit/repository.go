package audit

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogEvent saves an audit event to the database.
func (r *Repository) LogEvent(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.Create(event).Error
}

// GetEvents retrieves paginated audit events for a student, most recent first.
// A zero studentID returns events for everyone.
func (r *Repository) GetEvents(studentID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return r.query(r.db.Model(&entities.AuditEvent{}), studentID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (r *Repository) GetEventsByType(eventType entities.AuditEventType, studentID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return r.query(r.db.Model(&entities.AuditEvent{}).Where("event_type = ?", eventType), studentID, limit, offset)
}

// HasEvent reports whether an event with the given action was already
// recorded for the entity since the given time.
func (r *Repository) HasEvent(action, entityType string, entityID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&entities.AuditEvent{}).
		Where("action = ? AND entity_type = ? AND entity_id = ? AND created_at >= ?", action, entityType, entityID, since).
		Count(&count).Error
	return count > 0, err
}

// LogEventOnce saves event unless an event with the same action and entity
// was recorded at or after since, and reports whether it saved. The check
// and the insert share one write transaction (the DSN begins transactions
// IMMEDIATE), so two writers racing on the same entity record it once.
func (r *Repository) LogEventOnce(event *entities.AuditEvent, since time.Time) (bool, error) {
	if event.EntityID == nil {
		return false, fmt.Errorf("log event once: %s event has no entity id", event.Action)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	saved := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		seen, err := NewRepository(tx).HasEvent(event.Action, event.EntityType, *event.EntityID, since)
		if err != nil || seen {
			return err
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

// DeleteOldEvents removes audit events older than the specified time.
// Returns the number of deleted events.
func (r *Repository) DeleteOldEvents(olderThan time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", olderThan).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}

func (r *Repository) query(query *gorm.DB, studentID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	var events []entities.AuditEvent
	var total int64

	if studentID > 0 {
		query = query.Where("student_id = ?", studentID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}
