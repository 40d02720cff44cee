// Package lending implements the ledger that lends book copies to students.
//
// Each loan is a Transaction moving through borrowed -> returned exactly
// once. Borrow and Return change the book's available_copies counter in the
// same store transaction as the ledger row, using conditional updates, so
// that for every book
//
//	available_copies == total_copies - open transactions
//
// holds after each committed operation, however many requests race.
package lending

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/database/books"
	"github.com/mrlokans/campuslib/internal/database/students"
	"github.com/mrlokans/campuslib/internal/database/transactions"
	"github.com/mrlokans/campuslib/internal/entities"
	"github.com/mrlokans/campuslib/internal/retry"
)

const maxNotesLen = 1000

type BorrowInput struct {
	StudentID uint
	BookID    uint
	DueDate   *time.Time // takes precedence over LoanDays
	LoanDays  int        // due this many days after the borrow time; 0 with no DueDate means no deadline
	Notes     string
}

// FineSummary splits what a student owes into fines already recorded on
// returned loans and fines accruing on loans that are still out and late.
type FineSummary struct {
	Recorded entities.Money `json:"recorded"`
	Accruing entities.Money `json:"accruing"`
	Total    entities.Money `json:"total"`
}

type Ledger struct {
	db        *gorm.DB
	books     *books.Repository
	students  *students.Repository
	txns      *transactions.Repository
	clock     func() time.Time
	fines     FinePolicy
	retryOpts []retry.Option
}

type Option func(*Ledger)

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

func WithFinePolicy(policy FinePolicy) Option {
	return func(l *Ledger) { l.fines = policy }
}

func WithRetry(opts ...retry.Option) Option {
	return func(l *Ledger) { l.retryOpts = append(l.retryOpts, opts...) }
}

func NewLedger(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:       db,
		books:    books.NewRepository(db),
		students: students.NewRepository(db),
		txns:     transactions.NewRepository(db),
		clock:    time.Now,
		fines:    NoFines,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.retryOpts = append([]retry.Option{retry.WithLabel("lending")}, l.retryOpts...)
	return l
}

// Borrow lends one copy of a book. It fails with ErrUnavailable, leaving
// nothing changed, when no copy is on the shelf.
func (l *Ledger) Borrow(ctx context.Context, in BorrowInput) (*entities.Transaction, error) {
	if len(in.Notes) > maxNotesLen {
		return nil, fmt.Errorf("%w: notes exceed %d characters", apperrors.ErrValidation, maxNotesLen)
	}

	var txn *entities.Transaction
	err := retry.Do(ctx, func(ctx context.Context) error {
		now := l.clock().UTC()
		var due *time.Time
		if in.DueDate != nil {
			d := in.DueDate.UTC()
			if d.Before(now) {
				return fmt.Errorf("%w: due date %s is before the borrow time", apperrors.ErrValidation, d.Format(time.RFC3339))
			}
			due = &d
		} else if in.LoanDays > 0 {
			d := now.AddDate(0, 0, in.LoanDays)
			due = &d
		}

		return database.InTransaction(ctx, l.db, func(tx *gorm.DB) error {
			if _, err := l.students.WithTx(tx).GetByID(ctx, in.StudentID); err != nil {
				return fmt.Errorf("student %d: %w", in.StudentID, err)
			}
			bookRepo := l.books.WithTx(tx)
			book, err := bookRepo.GetByID(ctx, in.BookID)
			if err != nil {
				return fmt.Errorf("book %d: %w", in.BookID, err)
			}

			taken, err := bookRepo.DecrementAvailable(ctx, book.ID)
			if err != nil {
				return err
			}
			if !taken {
				return fmt.Errorf("%w: no copies of %q are available", apperrors.ErrUnavailable, book.Title)
			}

			txn = &entities.Transaction{
				StudentID:  in.StudentID,
				BookID:     book.ID,
				BorrowedAt: now,
				DueDate:    due,
				Status:     entities.TransactionStatusBorrowed,
				Notes:      in.Notes,
			}
			if err := l.txns.WithTx(tx).Create(ctx, txn); err != nil {
				return err
			}
			book.AvailableCopies--
			txn.Book = book
			return nil
		})
	}, l.retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("borrow: %w", err)
	}
	return txn, nil
}

// Return closes an open transaction at returnedAt (now when nil), records
// the fine and puts the copy back on the shelf.
func (l *Ledger) Return(ctx context.Context, transactionID uint, returnedAt *time.Time) (*entities.Transaction, error) {
	var result *entities.Transaction
	err := retry.Do(ctx, func(ctx context.Context) error {
		at := l.clock().UTC()
		if returnedAt != nil {
			at = returnedAt.UTC()
		}

		return database.InTransaction(ctx, l.db, func(tx *gorm.DB) error {
			txnRepo := l.txns.WithTx(tx)
			txn, err := txnRepo.GetByID(ctx, transactionID)
			if err != nil {
				return fmt.Errorf("transaction %d: %w", transactionID, err)
			}
			if !txn.IsOpen() {
				return fmt.Errorf("%w: transaction %d is already returned", apperrors.ErrInvalidState, transactionID)
			}
			if at.Before(txn.BorrowedAt) {
				return fmt.Errorf("%w: return time is before the borrow time", apperrors.ErrValidation)
			}

			fine := l.fines.Fine(txn.DueDate, at)
			flipped, err := txnRepo.MarkReturned(ctx, txn.ID, at, fine)
			if err != nil {
				return err
			}
			if !flipped {
				return fmt.Errorf("%w: transaction %d is already returned", apperrors.ErrInvalidState, transactionID)
			}

			restored, err := l.books.WithTx(tx).IncrementAvailable(ctx, txn.BookID)
			if err != nil {
				return err
			}
			if !restored {
				// Only possible after a clamped shrink left fewer copies than loans.
				log.Printf("[LENDING] book %d already at total copies when transaction %d was returned", txn.BookID, txn.ID)
			}

			result, err = txnRepo.GetByID(ctx, txn.ID)
			return err
		})
	}, l.retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("return: %w", err)
	}
	return result, nil
}

func (l *Ledger) Get(ctx context.Context, transactionID uint) (*entities.Transaction, error) {
	txn, err := l.txns.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, err)
	}
	return txn, nil
}

// ListOpen returns the student's books currently out, oldest loan first.
func (l *Ledger) ListOpen(ctx context.Context, studentID uint) ([]entities.Transaction, error) {
	result, err := l.txns.ListOpenForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list open transactions: %w", err)
	}
	return result, nil
}

// ListForStudent returns the student's full history, newest first.
func (l *Ledger) ListForStudent(ctx context.Context, studentID uint) ([]entities.Transaction, error) {
	result, err := l.txns.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return result, nil
}

// ListOverdue returns open loans whose due date has passed at now.
func (l *Ledger) ListOverdue(ctx context.Context, now time.Time) ([]entities.Transaction, error) {
	result, err := l.txns.ListOverdue(ctx, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list overdue transactions: %w", err)
	}
	return result, nil
}

// AccruedFine is what txn would be charged if it were returned at now.
func (l *Ledger) AccruedFine(txn *entities.Transaction, now time.Time) entities.Money {
	if !txn.IsOpen() {
		return txn.FineAmount
	}
	return l.fines.Fine(txn.DueDate, now)
}

func (l *Ledger) OutstandingFines(ctx context.Context, studentID uint) (*FineSummary, error) {
	recorded, err := l.txns.SumFinesForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("sum fines: %w", err)
	}
	open, err := l.txns.ListOpenForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("sum fines: %w", err)
	}

	now := l.clock().UTC()
	var accruing entities.Money
	for i := range open {
		accruing += l.AccruedFine(&open[i], now)
	}
	return &FineSummary{Recorded: recorded, Accruing: accruing, Total: recorded + accruing}, nil
}
