package http

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/audit"
	"github.com/mrlokans/campuslib/internal/catalog"
	"github.com/mrlokans/campuslib/internal/covers"
	"github.com/mrlokans/campuslib/internal/lending"
)

type createBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	TotalCopies *int   `json:"total_copies"`
	CoverURL    string `json:"cover_url"`
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	ISBN        *string `json:"isbn"`
	TotalCopies *int    `json:"total_copies"`
	CoverURL    *string `json:"cover_url"`
}

type borrowRequest struct {
	DueDate string `json:"due_date"`
	Notes   string `json:"notes"`
}

type BooksController struct {
	catalog         BookCatalog
	lender          Lender
	auditor         *audit.Service
	covers          CoverStore
	defaultLoanDays int
}

func NewBooksController(catalog BookCatalog, lender Lender, auditor *audit.Service, defaultLoanDays int) *BooksController {
	return &BooksController{
		catalog:         catalog,
		lender:          lender,
		auditor:         auditor,
		defaultLoanDays: defaultLoanDays,
	}
}

// WithCovers enables GET /api/books/:id/cover.
func (bc *BooksController) WithCovers(store CoverStore) *BooksController {
	bc.covers = store
	return bc
}

// GET /api/books?q=&available=
func (bc *BooksController) List(c *gin.Context) {
	availableOnly := false
	if raw := c.Query("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "available must be a boolean")
			return
		}
		availableOnly = v
	}

	books, err := bc.catalog.Search(c.Request.Context(), catalog.SearchQuery{
		Query:         c.Query("q"),
		AvailableOnly: availableOnly,
	})
	if err != nil {
		respondDomainError(c, err, "search books")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"books": books,
		"count": len(books),
	})
}

func (bc *BooksController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := bc.catalog.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

func (bc *BooksController) Create(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	book, err := bc.catalog.Create(c.Request.Context(), catalog.CreateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		TotalCopies: req.TotalCopies,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		respondDomainError(c, err, "create book")
		return
	}

	if bc.auditor != nil {
		bc.auditor.LogCatalog(GetStudentID(c), "book_create", book.ID, book.Title, requestInfo(c))
	}
	respondCreated(c, book)
}

func (bc *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	book, err := bc.catalog.Update(c.Request.Context(), id, catalog.UpdateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		TotalCopies: req.TotalCopies,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		respondDomainError(c, err, "update book")
		return
	}
	if req.CoverURL != nil {
		bc.invalidateCover(id)
	}

	if bc.auditor != nil {
		bc.auditor.LogCatalog(GetStudentID(c), "book_update", book.ID, book.Title, requestInfo(c))
	}
	c.JSON(http.StatusOK, book)
}

func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := bc.catalog.Delete(c.Request.Context(), id); err != nil {
		respondDomainError(c, err, "delete book")
		return
	}
	bc.invalidateCover(id)

	if bc.auditor != nil {
		bc.auditor.LogCatalog(GetStudentID(c), "book_delete", id, fmt.Sprintf("book %d", id), requestInfo(c))
	}
	respondSuccess(c, "book deleted")
}

// GET /api/books/:id/cover
func (bc *BooksController) Cover(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := bc.catalog.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get book")
		return
	}

	cover, err := bc.covers.Get(c.Request.Context(), book.ID, book.CoverURL)
	if errors.Is(err, covers.ErrFetchFailed) {
		log.Printf("Cover fetch for book %d failed [%s]: %v", book.ID, GetRequestID(c), err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "cover image is unavailable", Code: "cover_unavailable"})
		return
	}
	if err != nil {
		respondDomainError(c, err, "get cover")
		return
	}

	c.Header("Cache-Control", "private, max-age=86400")
	c.Header("Content-Type", cover.ContentType)
	c.File(cover.Path)
}

func (bc *BooksController) invalidateCover(bookID uint) {
	if bc.covers == nil {
		return
	}
	if err := bc.covers.Invalidate(bookID); err != nil {
		log.Printf("Failed to invalidate cover for book %d: %v", bookID, err)
	}
}

// POST /api/books/:id/borrow
// The body is optional; without due_date the loan runs for the configured
// number of days, or open-ended when that is zero.
func (bc *BooksController) Borrow(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "invalid request body")
		return
	}

	in := lending.BorrowInput{
		StudentID: GetStudentID(c),
		BookID:    id,
		LoanDays:  bc.defaultLoanDays,
		Notes:     strings.TrimSpace(req.Notes),
	}
	if raw := strings.TrimSpace(req.DueDate); raw != "" {
		due, err := ParseDueDate(raw)
		if err != nil {
			respondDomainError(c, err, "borrow")
			return
		}
		in.DueDate = due
	}

	txn, err := bc.lender.Borrow(c.Request.Context(), in)
	if err != nil {
		respondDomainError(c, err, "borrow")
		return
	}

	if bc.auditor != nil {
		bc.auditor.LogLending("borrow", txn, requestInfo(c))
	}
	respondCreated(c, txn)
}

// ParseDueDate accepts RFC 3339 timestamps or bare YYYY-MM-DD dates; a bare
// date means the last second of that day in UTC.
func ParseDueDate(raw string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: due_date %q is neither RFC 3339 nor YYYY-MM-DD", apperrors.ErrValidation, raw)
	}
	t := day.Add(24*time.Hour - time.Second)
	return &t, nil
}
