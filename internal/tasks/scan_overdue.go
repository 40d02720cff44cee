package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campuslib/internal/entities"
)

// NoticeInterval is the minimum gap between two overdue notices for the
// same loan. It is shorter than a day so a daily schedule never skips.
const NoticeInterval = 20 * time.Hour

// OverdueLedger is the part of the lending ledger the scan reads.
type OverdueLedger interface {
	ListOverdue(ctx context.Context, now time.Time) ([]entities.Transaction, error)
	AccruedFine(txn *entities.Transaction, now time.Time) entities.Money
}

// OverdueNotifier records an overdue notice unless one was recorded for the
// same loan since the given time, atomically.
type OverdueNotifier interface {
	RecordOverdueNotice(txn *entities.Transaction, now, since time.Time, accrued entities.Money) (bool, error)
}

// ScanResult summarises one overdue scan.
type ScanResult struct {
	Overdue  int
	Notified int
	Skipped  int
}

// OverdueScanner finds open loans past their due date and records one
// notice per loan per NoticeInterval.
type OverdueScanner struct {
	ledger   OverdueLedger
	notifier OverdueNotifier
	clock    func() time.Time
}

func NewOverdueScanner(ledger OverdueLedger, notifier OverdueNotifier) *OverdueScanner {
	return &OverdueScanner{ledger: ledger, notifier: notifier, clock: time.Now}
}

// WithClock replaces the scanner's time source.
func (s *OverdueScanner) WithClock(clock func() time.Time) *OverdueScanner {
	s.clock = clock
	return s
}

func (s *OverdueScanner) Scan(ctx context.Context) (ScanResult, error) {
	now := s.clock().UTC()
	overdue, err := s.ledger.ListOverdue(ctx, now)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan overdue: %w", err)
	}

	result := ScanResult{Overdue: len(overdue)}
	for i := range overdue {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		txn := &overdue[i]

		recorded, err := s.notifier.RecordOverdueNotice(txn, now, now.Add(-NoticeInterval), s.ledger.AccruedFine(txn, now))
		if err != nil {
			return result, fmt.Errorf("scan overdue: transaction %d: %w", txn.ID, err)
		}
		if recorded {
			result.Notified++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// ScanOverdueTask runs one OverdueScanner pass.
type ScanOverdueTask struct{}

// Config returns the queue configuration for overdue scans.
func (t ScanOverdueTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "scan_overdue",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ScanOverdueProcessor creates a processor function for ScanOverdueTask.
func ScanOverdueProcessor(scanner *OverdueScanner) backlite.QueueProcessor[ScanOverdueTask] {
	return func(ctx context.Context, _ ScanOverdueTask) error {
		if scanner == nil {
			return fmt.Errorf("overdue scanner not configured")
		}

		result, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}

		log.Printf("[TASK] Overdue scan: %d overdue, %d notified, %d already notified",
			result.Overdue, result.Notified, result.Skipped)
		return nil
	}
}

// NewScanOverdueQueue creates a backlite queue for overdue scans.
func NewScanOverdueQueue(scanner *OverdueScanner) backlite.Queue {
	return backlite.NewQueue(ScanOverdueProcessor(scanner))
}
