package books

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "books.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB)
}

func createBook(t *testing.T, repo *Repository, title, author string, copies int, addedAt time.Time) *entities.Book {
	t.Helper()
	book := &entities.Book{Title: title, Author: author, TotalCopies: copies, AvailableCopies: copies, AddedAt: addedAt}
	require.NoError(t, repo.Create(context.Background(), book))
	return book
}

func TestRepository_GetByID(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	book := createBook(t, repo, "Dune", "Frank Herbert", 2, time.Now())

	got, err := repo.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)

	_, err = repo.GetByID(ctx, 9999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepository_Search(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	dune := createBook(t, repo, "Dune", "Frank Herbert", 1, base)
	messiah := createBook(t, repo, "Dune Messiah", "Frank Herbert", 1, base.Add(time.Hour))
	sapiens := createBook(t, repo, "Sapiens", "Yuval Noah Harari", 1, base.Add(2*time.Hour))
	pct := createBook(t, repo, "100% Pure", "Anon", 1, base.Add(3*time.Hour))

	t.Run("empty query returns everything newest first", func(t *testing.T) {
		all, err := repo.Search(ctx, "", false)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []uint{pct.ID, sapiens.ID, messiah.ID, dune.ID}, ids(all))
	})

	t.Run("case-insensitive match on title or author", func(t *testing.T) {
		found, err := repo.Search(ctx, "hERBert", false)
		require.NoError(t, err)
		assert.Equal(t, []uint{messiah.ID, dune.ID}, ids(found))
	})

	t.Run("like wildcards are literal", func(t *testing.T) {
		found, err := repo.Search(ctx, "%", false)
		require.NoError(t, err)
		assert.Equal(t, []uint{pct.ID}, ids(found))
	})

	t.Run("available only", func(t *testing.T) {
		ok, err := repo.DecrementAvailable(ctx, sapiens.ID)
		require.NoError(t, err)
		require.True(t, ok)

		found, err := repo.Search(ctx, "", true)
		require.NoError(t, err)
		assert.NotContains(t, ids(found), sapiens.ID)
		assert.Len(t, found, 3)
	})
}

func TestRepository_Counters(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	book := createBook(t, repo, "Dune", "Frank Herbert", 1, time.Now())

	ok, err := repo.DecrementAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, ok, "decrement at zero must not apply")

	ok, err = repo.IncrementAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, ok, "increment at total must not apply")

	got, err := repo.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
}

func TestRepository_UpdateWithCounters(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	book := createBook(t, repo, "Dune", "Frank Herbert", 3, time.Now())

	stale := *book
	ok, err := repo.UpdateWithCounters(ctx, book, map[string]interface{}{"total_copies": 5, "available_copies": 5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateWithCounters(ctx, &stale, map[string]interface{}{"total_copies": 1, "available_copies": 1})
	require.NoError(t, err)
	assert.False(t, ok, "stale counters must not overwrite")

	got, err := repo.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalCopies)
}

func TestRepository_SoftDeleteAndISBN(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	isbn := "9780441013593"
	book := &entities.Book{Title: "Dune", ISBN: &isbn, TotalCopies: 1, AvailableCopies: 1, AddedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, book))

	inUse, err := repo.ISBNInUse(ctx, isbn, 0)
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = repo.ISBNInUse(ctx, isbn, book.ID)
	require.NoError(t, err)
	assert.False(t, inUse, "a book does not collide with itself")

	ok, err := repo.SoftDelete(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.GetByID(ctx, book.ID)
	assert.True(t, apperrors.IsNotFound(err))

	inUse, err = repo.ISBNInUse(ctx, isbn, 0)
	require.NoError(t, err)
	assert.False(t, inUse)

	err = repo.Create(ctx, &entities.Book{Title: "Dune", ISBN: &isbn, TotalCopies: 1, AvailableCopies: 1, AddedAt: time.Now()})
	assert.NoError(t, err)
}

func ids(list []entities.Book) []uint {
	out := make([]uint, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}
