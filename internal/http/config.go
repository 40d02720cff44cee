package http

import (
	"github.com/mrlokans/campuslib/internal/audit"
	"github.com/mrlokans/campuslib/internal/auth"
	"github.com/mrlokans/campuslib/internal/database"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Domain services
	Catalog  BookCatalog
	Lender   Lender
	Students StudentAccounts
	Covers   CoverStore // nil disables the cover endpoint

	Database     *database.Database
	Auditor      *audit.Service
	HealthChecks []HealthCheck // reported by /health after the database

	// Authentication
	SessionManager *auth.SessionManager
	RateLimiter    *auth.RateLimiter
	CSRFSecret     []byte // empty disables CSRF protection
	SecureCookies  bool

	// Lending defaults
	DefaultLoanDays int

	// Application info
	Version string

	// Disables gin's request log, for tests.
	Quiet bool
}
