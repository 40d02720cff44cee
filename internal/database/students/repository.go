// Package students provides database operations for library members.
//
// # Usage
//
//	repo := students.NewRepository(db)
//	student, err := repo.GetByEmail(ctx, "ada@example.com")
package students

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

// Repository handles all student database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new students repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts student. Duplicate email or roll number surfaces as
// apperrors.ErrConflict.
func (r *Repository) Create(ctx context.Context, student *entities.Student) error {
	return database.TranslateError(r.db.WithContext(ctx).Create(student).Error)
}

// GetByID retrieves a student by ID.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Student, error) {
	var student entities.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return nil, database.TranslateError(err)
	}
	return &student, nil
}

// GetByEmail retrieves a student by normalized email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*entities.Student, error) {
	var student entities.Student
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&student).Error; err != nil {
		return nil, database.TranslateError(err)
	}
	return &student, nil
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *Repository) RollNoExists(ctx context.Context, rollNo string) (bool, error) {
	return r.exists(ctx, "roll_no = ?", rollNo)
}

// UpdateLastLogin records a successful authentication.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&entities.Student{}).Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
	return database.TranslateError(err)
}

// Count returns the number of registered students.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Student{}).Count(&count).Error
	return count, database.TranslateError(err)
}

func (r *Repository) exists(ctx context.Context, cond string, arg interface{}) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Student{}).Where(cond, arg).Count(&count).Error; err != nil {
		return false, database.TranslateError(err)
	}
	return count > 0, nil
}
