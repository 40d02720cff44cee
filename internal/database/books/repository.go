// Package books provides database operations for the book catalog.
//
// Copy counters are only changed through conditional UPDATE statements
// (DecrementAvailable, IncrementAvailable, UpdateWithCounters) that name the
// row state they expect, so a concurrent writer can never push a counter
// outside 0..total_copies.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	ok, err := repo.WithTx(tx).DecrementAvailable(ctx, bookID)
package books

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, book *entities.Book) error {
	return database.TranslateError(r.db.WithContext(ctx).Create(book).Error)
}

// GetByID returns a live (not soft-deleted) book.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.WithContext(ctx).First(&book, id).Error; err != nil {
		return nil, database.TranslateError(err)
	}
	return &book, nil
}

// ISBNInUse reports whether a live book other than excludeID carries isbn.
func (r *Repository) ISBNInUse(ctx context.Context, isbn string, excludeID uint) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&entities.Book{}).Where("isbn = ?", isbn)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, database.TranslateError(err)
	}
	return count > 0, nil
}

// Search returns live books whose title, author or isbn contains query
// (case-insensitive), newest first.
func (r *Repository) Search(ctx context.Context, query string, availableOnly bool) ([]entities.Book, error) {
	var result []entities.Book
	db := r.db.WithContext(ctx).Model(&entities.Book{})

	if q := strings.TrimSpace(query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		db = db.Where(
			`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(COALESCE(isbn, '')) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern,
		)
	}
	if availableOnly {
		db = db.Where("available_copies > 0")
	}

	err := db.Order("added_at DESC").Order("id DESC").Find(&result).Error
	return result, database.TranslateError(err)
}

// DecrementAvailable takes one copy off the shelf if one is available.
// It returns false when the book has no available copies (or is gone).
func (r *Repository) DecrementAvailable(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("id = ? AND available_copies > 0", id).
		Update("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return false, database.TranslateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// IncrementAvailable puts one copy back, never past total_copies.
// It returns false when the counter was already at total_copies.
func (r *Repository) IncrementAvailable(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Unscoped().Model(&entities.Book{}).
		Where("id = ? AND available_copies < total_copies", id).
		Update("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return false, database.TranslateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateWithCounters writes fields onto book if its counters still hold the
// values in book.TotalCopies and book.AvailableCopies. It returns false
// when another writer changed them first.
func (r *Repository) UpdateWithCounters(ctx context.Context, book *entities.Book, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("id = ? AND total_copies = ? AND available_copies = ?", book.ID, book.TotalCopies, book.AvailableCopies).
		Updates(fields)
	if res.Error != nil {
		return false, database.TranslateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SoftDelete marks the book deleted; its rows stay for transaction history.
func (r *Repository) SoftDelete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&entities.Book{}, id)
	if res.Error != nil {
		return false, database.TranslateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
