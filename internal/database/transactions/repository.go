// Package transactions provides database operations for the lending ledger.
//
// Rows are append-only apart from the single borrowed -> returned status
// flip performed by MarkReturned.
package transactions

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, txn *entities.Transaction) error {
	return database.TranslateError(r.db.WithContext(ctx).Create(txn).Error)
}

// GetByID loads a transaction with its book, including soft-deleted books.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Transaction, error) {
	var txn entities.Transaction
	if err := r.withBook(ctx).First(&txn, id).Error; err != nil {
		return nil, database.TranslateError(err)
	}
	return &txn, nil
}

// MarkReturned flips an open transaction to returned. It returns false when
// the transaction was not open any more.
func (r *Repository) MarkReturned(ctx context.Context, id uint, returnedAt time.Time, fine entities.Money) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entities.Transaction{}).
		Where("id = ? AND status = ?", id, entities.TransactionStatusBorrowed).
		Updates(map[string]interface{}{
			"status":      entities.TransactionStatusReturned,
			"returned_at": returnedAt,
			"fine_amount": fine,
		})
	if res.Error != nil {
		return false, database.TranslateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListOpenForStudent returns the student's open loans, oldest first.
func (r *Repository) ListOpenForStudent(ctx context.Context, studentID uint) ([]entities.Transaction, error) {
	var result []entities.Transaction
	err := r.withBook(ctx).
		Where("student_id = ? AND status = ?", studentID, entities.TransactionStatusBorrowed).
		Order("borrowed_at ASC").Order("id ASC").
		Find(&result).Error
	return result, database.TranslateError(err)
}

// ListForStudent returns every transaction of the student, newest first.
func (r *Repository) ListForStudent(ctx context.Context, studentID uint) ([]entities.Transaction, error) {
	var result []entities.Transaction
	err := r.withBook(ctx).
		Where("student_id = ?", studentID).
		Order("borrowed_at DESC").Order("id DESC").
		Find(&result).Error
	return result, database.TranslateError(err)
}

// ListOverdue returns open transactions whose due date is before now,
// most overdue first.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time) ([]entities.Transaction, error) {
	var result []entities.Transaction
	err := r.withBook(ctx).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", entities.TransactionStatusBorrowed, now).
		Order("due_date ASC").Order("id ASC").
		Find(&result).Error
	return result, database.TranslateError(err)
}

// CountOpenForBook returns how many copies of the book are on loan.
func (r *Repository) CountOpenForBook(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Transaction{}).
		Where("book_id = ? AND status = ?", bookID, entities.TransactionStatusBorrowed).
		Count(&count).Error
	return count, database.TranslateError(err)
}

// SumFinesForStudent totals fines recorded on the student's returned loans.
func (r *Repository) SumFinesForStudent(ctx context.Context, studentID uint) (entities.Money, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&entities.Transaction{}).
		Where("student_id = ?", studentID).
		Select("COALESCE(SUM(fine_amount), 0)").
		Scan(&total).Error
	return entities.Money(total), database.TranslateError(err)
}

func (r *Repository) withBook(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Book", func(db *gorm.DB) *gorm.DB {
		return db.Unscoped()
	})
}
