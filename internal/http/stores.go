package http

import (
	"context"
	"time"

	"github.com/mrlokans/campuslib/internal/catalog"
	"github.com/mrlokans/campuslib/internal/covers"
	"github.com/mrlokans/campuslib/internal/entities"
	"github.com/mrlokans/campuslib/internal/lending"
	"github.com/mrlokans/campuslib/internal/membership"
)

// This file consolidates the service interfaces used by HTTP controllers.
// The concrete implementations live in catalog, membership and lending.

// BookCatalog is the book side of the API.
type BookCatalog interface {
	Create(ctx context.Context, in catalog.CreateBookInput) (*entities.Book, error)
	Get(ctx context.Context, id uint) (*entities.Book, error)
	Search(ctx context.Context, q catalog.SearchQuery) ([]entities.Book, error)
	Update(ctx context.Context, id uint, in catalog.UpdateBookInput) (*entities.Book, error)
	Delete(ctx context.Context, id uint) error
}

// Lender is the loan side of the API.
type Lender interface {
	Borrow(ctx context.Context, in lending.BorrowInput) (*entities.Transaction, error)
	Return(ctx context.Context, transactionID uint, returnedAt *time.Time) (*entities.Transaction, error)
	Get(ctx context.Context, transactionID uint) (*entities.Transaction, error)
	ListOpen(ctx context.Context, studentID uint) ([]entities.Transaction, error)
	ListForStudent(ctx context.Context, studentID uint) ([]entities.Transaction, error)
	OutstandingFines(ctx context.Context, studentID uint) (*lending.FineSummary, error)
}

// StudentAccounts covers signup and login.
type StudentAccounts interface {
	Signup(ctx context.Context, in membership.SignupInput) (*entities.Student, error)
	Authenticate(ctx context.Context, email, password string) (*entities.Student, error)
	Get(ctx context.Context, id uint) (*entities.Student, error)
}

// CoverStore serves cached cover images.
type CoverStore interface {
	Get(ctx context.Context, bookID uint, coverURL string) (*covers.Cover, error)
	Invalidate(bookID uint) error
}

var (
	_ CoverStore      = (*covers.Cache)(nil)
	_ BookCatalog     = (*catalog.Service)(nil)
	_ Lender          = (*lending.Ledger)(nil)
	_ StudentAccounts = (*membership.Service)(nil)
)
