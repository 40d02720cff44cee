// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (DSN, pragmas), migrations, transactions
//	├── errors.go        # SQLite error translation to apperrors sentinels
//	├── books/           # Catalog rows and conditional copy-counter updates
//	├── students/        # Student accounts
//	├── transactions/    # Loan records
//	└── audit/           # Audit trail
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.Open("./campuslib.db", database.Options{})
//
//	booksRepo := books.NewRepository(db.DB)
//	book, err := booksRepo.GetByID(ctx, 123)
//
// Repositories that take part in a multi-step write expose WithTx so the
// services in catalog and lending can run them inside InTransaction.
//
// # Concurrency
//
// Write transactions begin with BEGIN IMMEDIATE (_txlock=immediate) and wait
// up to the busy timeout for the lock. Lock timeouts surface as
// apperrors.ErrConcurrencyConflict, which callers retry through the retry
// package.
package database
