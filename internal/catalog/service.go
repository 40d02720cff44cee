// Package catalog owns the book records: creation, lookup, search, edits
// and removal. Copy counters are written here only when an edit changes
// total_copies; borrowing and returning move them through the lending
// package.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/database/books"
	"github.com/mrlokans/campuslib/internal/database/transactions"
	"github.com/mrlokans/campuslib/internal/entities"
	"github.com/mrlokans/campuslib/internal/retry"
)

// ShrinkPolicy decides what Update does when the new total_copies would be
// smaller than the number of copies currently on loan.
type ShrinkPolicy string

const (
	// ShrinkReject refuses the edit with apperrors.ErrInvalidState.
	ShrinkReject ShrinkPolicy = "reject"
	// ShrinkClamp applies the edit and clamps available_copies at zero.
	ShrinkClamp ShrinkPolicy = "clamp"
)

const (
	maxTitleLen  = 512
	maxAuthorLen = 256
	maxISBNLen   = 20
)

type CreateBookInput struct {
	Title       string
	Author      string
	ISBN        string
	TotalCopies *int // defaults to 1
	CoverURL    string
}

// UpdateBookInput holds the fields to change; nil leaves a field as is.
// An empty ISBN clears it.
type UpdateBookInput struct {
	Title       *string
	Author      *string
	ISBN        *string
	TotalCopies *int
	CoverURL    *string
}

type SearchQuery struct {
	Query         string
	AvailableOnly bool
}

type Service struct {
	db        *gorm.DB
	books     *books.Repository
	txns      *transactions.Repository
	clock     func() time.Time
	shrink    ShrinkPolicy
	retryOpts []retry.Option
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithShrinkPolicy(policy ShrinkPolicy) Option {
	return func(s *Service) { s.shrink = policy }
}

func WithRetry(opts ...retry.Option) Option {
	return func(s *Service) { s.retryOpts = append(s.retryOpts, opts...) }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		books:  books.NewRepository(db),
		txns:   transactions.NewRepository(db),
		clock:  time.Now,
		shrink: ShrinkReject,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retryOpts = append([]retry.Option{retry.WithLabel("catalog")}, s.retryOpts...)
	return s
}

func (s *Service) Create(ctx context.Context, in CreateBookInput) (*entities.Book, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	total := 1
	if in.TotalCopies != nil {
		total = *in.TotalCopies
	}
	if total < 1 {
		return nil, fmt.Errorf("%w: total_copies must be at least 1", apperrors.ErrValidation)
	}
	author := strings.TrimSpace(in.Author)
	isbn := normalizeISBN(in.ISBN)
	if err := validateLengths(title, author, isbn); err != nil {
		return nil, err
	}

	book := &entities.Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     total,
		AvailableCopies: total,
		CoverURL:        strings.TrimSpace(in.CoverURL),
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		return database.InTransaction(ctx, s.db, func(tx *gorm.DB) error {
			repo := s.books.WithTx(tx)
			if isbn != nil {
				inUse, err := repo.ISBNInUse(ctx, *isbn, 0)
				if err != nil {
					return err
				}
				if inUse {
					return fmt.Errorf("%w: isbn %s is already in the catalog", apperrors.ErrConflict, *isbn)
				}
			}
			book.ID = 0
			book.AddedAt = s.clock().UTC()
			return repo.Create(ctx, book)
		})
	}, s.retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*entities.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("book %d: %w", id, err)
	}
	return book, nil
}

func (s *Service) Search(ctx context.Context, q SearchQuery) ([]entities.Book, error) {
	result, err := s.books.Search(ctx, q.Query, q.AvailableOnly)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return result, nil
}

// Update edits a book in one store transaction. A change of total_copies by
// d shifts available_copies by d, never below zero.
func (s *Service) Update(ctx context.Context, id uint, in UpdateBookInput) (*entities.Book, error) {
	var updated *entities.Book

	err := retry.Do(ctx, func(ctx context.Context) error {
		return database.InTransaction(ctx, s.db, func(tx *gorm.DB) error {
			repo := s.books.WithTx(tx)
			book, err := repo.GetByID(ctx, id)
			if err != nil {
				return err
			}

			fields, err := s.changes(ctx, tx, book, in)
			if err != nil {
				return err
			}
			if len(fields) > 0 {
				applied, err := repo.UpdateWithCounters(ctx, book, fields)
				if err != nil {
					return err
				}
				if !applied {
					return fmt.Errorf("%w: book %d changed during update", apperrors.ErrConcurrencyConflict, id)
				}
			}

			updated, err = repo.GetByID(ctx, id)
			return err
		})
	}, s.retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("update book %d: %w", id, err)
	}
	return updated, nil
}

func (s *Service) changes(ctx context.Context, tx *gorm.DB, book *entities.Book, in UpdateBookInput) (map[string]interface{}, error) {
	fields := map[string]interface{}{}

	title, author := book.Title, book.Author
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be blank", apperrors.ErrValidation)
		}
		fields["title"] = title
	}
	if in.Author != nil {
		author = strings.TrimSpace(*in.Author)
		fields["author"] = author
	}
	if in.CoverURL != nil {
		fields["cover_url"] = strings.TrimSpace(*in.CoverURL)
	}

	var isbn *string
	if in.ISBN != nil {
		isbn = normalizeISBN(*in.ISBN)
		if isbn != nil {
			inUse, err := s.books.WithTx(tx).ISBNInUse(ctx, *isbn, book.ID)
			if err != nil {
				return nil, err
			}
			if inUse {
				return nil, fmt.Errorf("%w: isbn %s is already in the catalog", apperrors.ErrConflict, *isbn)
			}
		}
		fields["isbn"] = isbn
	}
	if err := validateLengths(title, author, isbn); err != nil {
		return nil, err
	}

	if in.TotalCopies != nil {
		total := *in.TotalCopies
		if total < 0 {
			return nil, fmt.Errorf("%w: total_copies must not be negative", apperrors.ErrValidation)
		}

		if total < book.TotalCopies && s.shrink != ShrinkClamp {
			onLoan, err := s.txns.WithTx(tx).CountOpenForBook(ctx, book.ID)
			if err != nil {
				return nil, err
			}
			if int64(total) < onLoan {
				return nil, fmt.Errorf("%w: %d copies of book %d are on loan, cannot reduce total to %d",
					apperrors.ErrInvalidState, onLoan, book.ID, total)
			}
		}

		available := book.AvailableCopies + (total - book.TotalCopies)
		if available < 0 {
			available = 0
		}
		fields["total_copies"] = total
		fields["available_copies"] = available
	}

	return fields, nil
}

// Delete removes a book from the catalog. Books with copies on loan cannot
// be deleted; the row is soft-deleted so past transactions keep their book.
func (s *Service) Delete(ctx context.Context, id uint) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		return database.InTransaction(ctx, s.db, func(tx *gorm.DB) error {
			if _, err := s.books.WithTx(tx).GetByID(ctx, id); err != nil {
				return err
			}
			onLoan, err := s.txns.WithTx(tx).CountOpenForBook(ctx, id)
			if err != nil {
				return err
			}
			if onLoan > 0 {
				return fmt.Errorf("%w: %d copies are still on loan", apperrors.ErrInvalidState, onLoan)
			}
			deleted, err := s.books.WithTx(tx).SoftDelete(ctx, id)
			if err != nil {
				return err
			}
			if !deleted {
				return apperrors.ErrNotFound
			}
			return nil
		})
	}, s.retryOpts...)
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	return nil
}

func normalizeISBN(raw string) *string {
	isbn := strings.TrimSpace(raw)
	if isbn == "" {
		return nil
	}
	return &isbn
}

func validateLengths(title, author string, isbn *string) error {
	switch {
	case len(title) > maxTitleLen:
		return fmt.Errorf("%w: title exceeds %d characters", apperrors.ErrValidation, maxTitleLen)
	case len(author) > maxAuthorLen:
		return fmt.Errorf("%w: author exceeds %d characters", apperrors.ErrValidation, maxAuthorLen)
	case isbn != nil && len(*isbn) > maxISBNLen:
		return fmt.Errorf("%w: isbn exceeds %d characters", apperrors.ErrValidation, maxISBNLen)
	}
	return nil
}
