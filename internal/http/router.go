package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campuslib/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	if !cfg.Quiet {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
	}
	router.Use(cfg.SessionManager.SessionLoadSave())
	router.Use(auth.NewMiddleware(cfg.Students, cfg.SessionManager).Handler())

	checks := cfg.HealthChecks
	if cfg.Database != nil {
		checks = append([]HealthCheck{DatabaseCheck(cfg.Database)}, checks...)
	}
	health := NewHealthController(cfg.Version, checks...)
	authController := NewAuthController(cfg.Students, cfg.Lender, cfg.SessionManager, cfg.RateLimiter, cfg.Auditor)
	booksController := NewBooksController(cfg.Catalog, cfg.Lender, cfg.Auditor, cfg.DefaultLoanDays)
	if cfg.Covers != nil {
		booksController.WithCovers(cfg.Covers)
	}
	transactionsController := NewTransactionsController(cfg.Lender, cfg.Auditor)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	// Account endpoints
	router.POST("/api/signup", authController.Signup)
	router.POST("/api/login", authController.Login)
	router.POST("/api/logout", authController.Logout)

	api := router.Group("/api", auth.RequireAuth())
	api.GET("/me", authController.Me)
	api.GET("/me/activity", authController.Activity)

	// Catalog endpoints
	api.GET("/books", booksController.List)
	api.POST("/books", booksController.Create)
	api.GET("/books/:id", booksController.Get)
	api.PUT("/books/:id", booksController.Update)
	api.DELETE("/books/:id", booksController.Delete)
	api.POST("/books/:id/borrow", booksController.Borrow)
	if cfg.Covers != nil {
		api.GET("/books/:id/cover", booksController.Cover)
	}

	// Lending endpoints
	api.GET("/transactions", transactionsController.ListOpen)
	api.GET("/transactions/history", transactionsController.History)
	api.GET("/transactions/:id", transactionsController.Get)
	api.POST("/transactions/:id/return", transactionsController.Return)

	return router
}
