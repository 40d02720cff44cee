package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/campuslib/internal/database/audit"
	"github.com/mrlokans/campuslib/internal/entities"
)

// RequestInfo carries the request metadata stored alongside an event.
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
	wg   sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Wait blocks until all pending LogAsync writes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LogAuth records a signup, login or logout attempt.
func (s *Service) LogAuth(studentID *uint, action string, info RequestInfo, err error) {
	event := &entities.AuditEvent{
		StudentID:  studentID,
		EventType:  entities.AuditEventAuth,
		Action:     action,
		EntityType: "student",
		EntityID:   studentID,
		Status:     entities.AuditStatusSuccess,
	}
	applyRequest(event, info)
	applyError(event, err)

	s.LogAsync(event)
}

// LogCatalog records a book create, update or delete.
func (s *Service) LogCatalog(studentID uint, action string, bookID uint, title string, info RequestInfo) {
	event := &entities.AuditEvent{
		StudentID:   &studentID,
		EventType:   entities.AuditEventCatalog,
		Action:      action,
		Description: fmt.Sprintf("%s: %s", action, title),
		EntityType:  "book",
		EntityID:    &bookID,
		Status:      entities.AuditStatusSuccess,
	}
	applyRequest(event, info)

	s.LogAsync(event)
}

// LogLending records a borrow or return.
func (s *Service) LogLending(action string, txn *entities.Transaction, info RequestInfo) {
	studentID := txn.StudentID
	txnID := txn.ID
	event := &entities.AuditEvent{
		StudentID:   &studentID,
		EventType:   entities.AuditEventLending,
		Action:      action,
		Description: fmt.Sprintf("%s book %d", action, txn.BookID),
		EntityType:  "transaction",
		EntityID:    &txnID,
		Status:      entities.AuditStatusSuccess,
	}

	metadata := map[string]any{
		"book_id": txn.BookID,
	}
	if txn.DueDate != nil {
		metadata["due_date"] = txn.DueDate.Format(time.RFC3339)
	}
	if txn.Status == entities.TransactionStatusReturned {
		metadata["fine_amount"] = txn.FineAmount.String()
	}
	if mdBytes, e := json.Marshal(metadata); e == nil {
		event.Metadata = string(mdBytes)
	}
	applyRequest(event, info)

	s.LogAsync(event)
}

// RecordOverdueNotice records that txn was found overdue, unless a notice
// for it was already recorded at or after since. It reports whether a new
// notice was written.
func (s *Service) RecordOverdueNotice(txn *entities.Transaction, now, since time.Time, accrued entities.Money) (bool, error) {
	studentID := txn.StudentID
	txnID := txn.ID
	days := 0
	if txn.DueDate != nil {
		days = int(now.Sub(*txn.DueDate).Hours() / 24)
	}

	event := &entities.AuditEvent{
		StudentID:   &studentID,
		EventType:   entities.AuditEventOverdue,
		Action:      ActionOverdueNotice,
		Description: fmt.Sprintf("book %d overdue by %d day(s)", txn.BookID, days),
		EntityType:  "transaction",
		EntityID:    &txnID,
		Status:      entities.AuditStatusSuccess,
		CreatedAt:   now,
	}
	if mdBytes, e := json.Marshal(map[string]any{"book_id": txn.BookID, "accrued_fine": accrued.String()}); e == nil {
		event.Metadata = string(mdBytes)
	}
	return s.repo.LogEventOnce(event, since)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(studentID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(studentID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, studentID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, studentID, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

const ActionOverdueNotice = "overdue_notice"

func applyRequest(event *entities.AuditEvent, info RequestInfo) {
	event.RequestID = info.RequestID
	event.IPAddress = info.IPAddress
	event.UserAgent = truncate(info.UserAgent, 500)
}

func applyError(event *entities.AuditEvent, err error) {
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
