package transactions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

type fixture struct {
	db      *gorm.DB
	repo    *Repository
	student *entities.Student
	book    *entities.Book
}

func setupTestDB(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "transactions.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	student := &entities.Student{Name: "Ada", Email: "ada@example.com", PasswordHash: "hash"}
	require.NoError(t, db.DB.Create(student).Error)
	book := &entities.Book{Title: "Dune", TotalCopies: 3, AvailableCopies: 3, AddedAt: time.Now()}
	require.NoError(t, db.DB.Create(book).Error)

	return &fixture{db: db.DB, repo: NewRepository(db.DB), student: student, book: book}
}

func (f *fixture) borrow(t *testing.T, borrowedAt time.Time, due *time.Time) *entities.Transaction {
	t.Helper()
	txn := &entities.Transaction{
		StudentID:  f.student.ID,
		BookID:     f.book.ID,
		BorrowedAt: borrowedAt,
		DueDate:    due,
		Status:     entities.TransactionStatusBorrowed,
	}
	require.NoError(t, f.repo.Create(context.Background(), txn))
	return txn
}

func timePtr(t time.Time) *time.Time { return &t }

func TestRepository_GetByID(t *testing.T) {
	f := setupTestDB(t)
	ctx := context.Background()
	txn := f.borrow(t, time.Now(), nil)

	got, err := f.repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Book)
	assert.Equal(t, "Dune", got.Book.Title)

	t.Run("book stays visible after soft delete", func(t *testing.T) {
		require.NoError(t, f.db.Delete(&entities.Book{}, f.book.ID).Error)
		got, err := f.repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Book)
		assert.Equal(t, f.book.ID, got.Book.ID)
	})

	_, err = f.repo.GetByID(ctx, 4242)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepository_MarkReturned(t *testing.T) {
	f := setupTestDB(t)
	ctx := context.Background()
	txn := f.borrow(t, time.Now().Add(-48*time.Hour), nil)

	returnedAt := time.Now().UTC()
	ok, err := f.repo.MarkReturned(ctx, txn.ID, returnedAt, entities.Money(150))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.repo.MarkReturned(ctx, txn.ID, returnedAt.Add(time.Hour), entities.Money(999))
	require.NoError(t, err)
	assert.False(t, ok, "second flip must not apply")

	got, err := f.repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusReturned, got.Status)
	assert.Equal(t, entities.Money(150), got.FineAmount)
	require.NotNil(t, got.ReturnedAt)
	assert.True(t, returnedAt.Equal(*got.ReturnedAt))
}

func TestRepository_Listings(t *testing.T) {
	f := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

	older := f.borrow(t, now.Add(-30*24*time.Hour), timePtr(now.Add(-16*24*time.Hour)))
	newer := f.borrow(t, now.Add(-2*24*time.Hour), timePtr(now.Add(12*24*time.Hour)))
	returned := f.borrow(t, now.Add(-10*24*time.Hour), timePtr(now.Add(-1*24*time.Hour)))
	_, err := f.repo.MarkReturned(ctx, returned.ID, now, entities.Money(50))
	require.NoError(t, err)

	open, err := f.repo.ListOpenForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, older.ID, open[0].ID)
	assert.Equal(t, newer.ID, open[1].ID)

	all, err := f.repo.ListForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newer.ID, all[0].ID)

	overdue, err := f.repo.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, older.ID, overdue[0].ID)

	count, err := f.repo.CountOpenForBook(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	fines, err := f.repo.SumFinesForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.Money(50), fines)
}
