package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "audit.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB)
}

func uintPtr(v uint) *uint { return &v }

func TestRepository_LogEvent(t *testing.T) {
	repo := setupTestDB(t)

	event := &entities.AuditEvent{
		StudentID: uintPtr(1),
		EventType: entities.AuditEventLending,
		Action:    "borrow",
		Status:    entities.AuditStatusSuccess,
	}
	require.NoError(t, repo.LogEvent(event))
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_GetEvents(t *testing.T) {
	repo := setupTestDB(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			StudentID: uintPtr(1),
			EventType: entities.AuditEventLending,
			Action:    "borrow",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		StudentID: uintPtr(2),
		EventType: entities.AuditEventAuth,
		Action:    "login",
		CreatedAt: base,
	}))

	t.Run("filters by student", func(t *testing.T) {
		events, total, err := repo.GetEvents(1, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, events, 2)
		assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))
	})

	t.Run("all students", func(t *testing.T) {
		_, total, err := repo.GetEvents(0, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
	})

	t.Run("by type", func(t *testing.T) {
		events, total, err := repo.GetEventsByType(entities.AuditEventAuth, 0, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "login", events[0].Action)
	})
}

func TestRepository_HasEvent(t *testing.T) {
	repo := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EventType:  entities.AuditEventOverdue,
		Action:     "overdue_notice",
		EntityType: "transaction",
		EntityID:   uintPtr(7),
		CreatedAt:  now,
	}))

	found, err := repo.HasEvent("overdue_notice", "transaction", 7, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.HasEvent("overdue_notice", "transaction", 8, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRepository_LogEventOnce(t *testing.T) {
	repo := setupTestDB(t)
	now := time.Now().UTC()
	notice := func(id uint, at time.Time) *entities.AuditEvent {
		return &entities.AuditEvent{
			EventType:  entities.AuditEventOverdue,
			Action:     "overdue_notice",
			EntityType: "transaction",
			EntityID:   uintPtr(id),
			CreatedAt:  at,
		}
	}

	saved, err := repo.LogEventOnce(notice(7, now.Add(-30*time.Hour)), now.Add(-40*time.Hour))
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = repo.LogEventOnce(notice(7, now), now.Add(-40*time.Hour))
	require.NoError(t, err)
	assert.False(t, saved, "already recorded inside the window")

	saved, err = repo.LogEventOnce(notice(7, now), now.Add(-20*time.Hour))
	require.NoError(t, err)
	assert.True(t, saved, "the earlier event is outside the window")

	_, err = repo.LogEventOnce(&entities.AuditEvent{Action: "overdue_notice"}, now)
	assert.Error(t, err)
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	repo := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{Action: "old", CreatedAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{Action: "new", CreatedAt: now}))

	deleted, err := repo.DeleteOldEvents(now.Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := repo.GetEvents(0, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "new", events[0].Action)
}
