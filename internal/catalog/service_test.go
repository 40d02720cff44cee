package catalog

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
	"github.com/mrlokans/campuslib/internal/database/books"
	"github.com/mrlokans/campuslib/internal/entities"
)

var fixedNow = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(db.DB, opts...), db.DB
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

// lend simulates n open loans of the book the way the ledger records them.
func lend(t *testing.T, db *gorm.DB, bookID uint, n int) {
	t.Helper()
	student := &entities.Student{Name: "Reader", Email: "reader" + time.Now().Format("150405.000000000") + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(student).Error)

	repo := books.NewRepository(db)
	for i := 0; i < n; i++ {
		ok, err := repo.DecrementAvailable(context.Background(), bookID)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, db.Create(&entities.Transaction{
			StudentID:  student.ID,
			BookID:     bookID,
			BorrowedAt: fixedNow,
			Status:     entities.TransactionStatusBorrowed,
		}).Error)
	}
}

func TestService_Create(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	t.Run("defaults to one copy", func(t *testing.T) {
		book, err := svc.Create(ctx, CreateBookInput{Title: "  Dune ", Author: "Frank Herbert"})
		require.NoError(t, err)
		assert.NotZero(t, book.ID)
		assert.Equal(t, "Dune", book.Title)
		assert.Equal(t, 1, book.TotalCopies)
		assert.Equal(t, 1, book.AvailableCopies)
		assert.True(t, fixedNow.Equal(book.AddedAt))
		assert.Nil(t, book.ISBN)
	})

	t.Run("available equals total", func(t *testing.T) {
		book, err := svc.Create(ctx, CreateBookInput{Title: "Sapiens", ISBN: "9780062316097", TotalCopies: intPtr(4)})
		require.NoError(t, err)
		assert.Equal(t, 4, book.AvailableCopies)
		require.NotNil(t, book.ISBN)
		assert.Equal(t, "9780062316097", *book.ISBN)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			in   CreateBookInput
		}{
			{"blank title", CreateBookInput{Title: "   "}},
			{"zero copies", CreateBookInput{Title: "X", TotalCopies: intPtr(0)}},
			{"negative copies", CreateBookInput{Title: "X", TotalCopies: intPtr(-2)}},
			{"isbn too long", CreateBookInput{Title: "X", ISBN: "978-0-06-231609-7-0000"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Create(ctx, tt.in)
				assert.True(t, apperrors.IsValidation(err), "got %v", err)
			})
		}
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateBookInput{Title: "Sapiens again", ISBN: "9780062316097"})
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestService_DuplicateISBNWhateverItSays(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for _, isbn := range []string{"database is locked", "UNIQUE constraint"} {
		t.Run(isbn, func(t *testing.T) {
			_, err := svc.Create(ctx, CreateBookInput{Title: "First", ISBN: isbn})
			require.NoError(t, err)

			_, err = svc.Create(ctx, CreateBookInput{Title: "Second", ISBN: isbn})
			assert.True(t, apperrors.IsConflict(err), "got %v", err)
			assert.False(t, apperrors.IsConcurrencyConflict(err))

			other, err := svc.Create(ctx, CreateBookInput{Title: "Third"})
			require.NoError(t, err)
			_, err = svc.Update(ctx, other.ID, UpdateBookInput{ISBN: strPtr(isbn)})
			assert.True(t, apperrors.IsConflict(err), "got %v", err)
			assert.False(t, apperrors.IsConcurrencyConflict(err))
		})
	}
}

func TestService_Get(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateBookInput{Title: "Dune"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Get(ctx, created.ID+100)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_Search(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	dune, err := svc.Create(ctx, CreateBookInput{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateBookInput{Title: "Sapiens", Author: "Yuval Noah Harari", ISBN: "9780062316097"})
	require.NoError(t, err)

	found, err := svc.Search(ctx, SearchQuery{Query: "0062316"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Sapiens", found[0].Title)

	lend(t, db, dune.ID, 1)
	found, err = svc.Search(ctx, SearchQuery{Query: "dune", AvailableOnly: true})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestService_Update(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, CreateBookInput{Title: "Dune", ISBN: "111", TotalCopies: intPtr(2)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateBookInput{Title: "Other", ISBN: "222"})
	require.NoError(t, err)

	t.Run("grow shifts available", func(t *testing.T) {
		updated, err := svc.Update(ctx, book.ID, UpdateBookInput{TotalCopies: intPtr(5), Author: strPtr("Frank Herbert")})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.TotalCopies)
		assert.Equal(t, 5, updated.AvailableCopies)
		assert.Equal(t, "Frank Herbert", updated.Author)
		assert.Equal(t, "Dune", updated.Title)
	})

	t.Run("clear isbn", func(t *testing.T) {
		updated, err := svc.Update(ctx, book.ID, UpdateBookInput{ISBN: strPtr("")})
		require.NoError(t, err)
		assert.Nil(t, updated.ISBN)
	})

	t.Run("isbn collision", func(t *testing.T) {
		_, err := svc.Update(ctx, book.ID, UpdateBookInput{ISBN: strPtr("222")})
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("blank title", func(t *testing.T) {
		_, err := svc.Update(ctx, book.ID, UpdateBookInput{Title: strPtr(" ")})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("negative total", func(t *testing.T) {
		_, err := svc.Update(ctx, book.ID, UpdateBookInput{TotalCopies: intPtr(-1)})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing book", func(t *testing.T) {
		_, err := svc.Update(ctx, 9999, UpdateBookInput{Title: strPtr("X")})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("empty update is a no-op", func(t *testing.T) {
		updated, err := svc.Update(ctx, book.ID, UpdateBookInput{})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.TotalCopies)
	})
}

func TestService_Update_Shrink(t *testing.T) {
	ctx := context.Background()

	t.Run("no loans: 3 to 1", func(t *testing.T) {
		svc, _ := setupTestService(t)
		book, err := svc.Create(ctx, CreateBookInput{Title: "Dune", TotalCopies: intPtr(3)})
		require.NoError(t, err)

		updated, err := svc.Update(ctx, book.ID, UpdateBookInput{TotalCopies: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.TotalCopies)
		assert.Equal(t, 1, updated.AvailableCopies)
	})

	t.Run("two loans, reject policy", func(t *testing.T) {
		svc, db := setupTestService(t)
		book, err := svc.Create(ctx, CreateBookInput{Title: "Dune", TotalCopies: intPtr(3)})
		require.NoError(t, err)
		lend(t, db, book.ID, 2)

		_, err = svc.Update(ctx, book.ID, UpdateBookInput{TotalCopies: intPtr(1), Title: strPtr("Dune II")})
		assert.True(t, apperrors.IsInvalidState(err))

		unchanged, err := svc.Get(ctx, book.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dune", unchanged.Title)
		assert.Equal(t, 3, unchanged.TotalCopies)
		assert.Equal(t, 1, unchanged.AvailableCopies)
	})

	t.Run("two loans, shrink to exactly on-loan count", func(t *testing.T) {
		svc, db := setupTestService(t)
		book, err := svc.Create(ctx, CreateBookInput{Title: "Dune", TotalCopies: intPtr(3)})
		require.NoError(t, err)
		lend(t, db, book.ID, 2)

		updated, err := svc.Update(ctx, book.ID, UpdateBookInput{TotalCopies: intPtr(2)})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.TotalCopies)
		assert.Equal(t, 0, updated.AvailableCopies)
	})

	t.Run("two loans, clamp policy", func(t *testing.T) {
		svc, db := setupTestService(t, WithShrinkPolicy(ShrinkClamp))
		book, err := svc.Create(ctx, CreateBookInput{Title: "Dune", TotalCopies: intPtr(3)})
		require.NoError(t, err)
		lend(t, db, book.ID, 2)

		updated, err := svc.Update(ctx, book.ID, UpdateBookInput{TotalCopies: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.TotalCopies)
		assert.Equal(t, 0, updated.AvailableCopies)
	})
}

func TestService_Delete(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	t.Run("refused while on loan", func(t *testing.T) {
		book, err := svc.Create(ctx, CreateBookInput{Title: "Dune", ISBN: "111"})
		require.NoError(t, err)
		lend(t, db, book.ID, 1)

		err = svc.Delete(ctx, book.ID)
		assert.True(t, apperrors.IsInvalidState(err))

		_, err = svc.Get(ctx, book.ID)
		assert.NoError(t, err)
	})

	t.Run("soft deletes and frees the isbn", func(t *testing.T) {
		book, err := svc.Create(ctx, CreateBookInput{Title: "Sapiens", ISBN: "222"})
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, book.ID))

		_, err = svc.Get(ctx, book.ID)
		assert.True(t, apperrors.IsNotFound(err))

		var raw entities.Book
		require.NoError(t, db.Unscoped().First(&raw, book.ID).Error)
		assert.True(t, raw.DeletedAt.Valid)

		_, err = svc.Create(ctx, CreateBookInput{Title: "Sapiens", ISBN: "222"})
		assert.NoError(t, err)
	})

	t.Run("missing book", func(t *testing.T) {
		err := svc.Delete(ctx, 9999)
		assert.True(t, apperrors.IsNotFound(err))
	})
}
