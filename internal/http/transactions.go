package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/audit"
	"github.com/mrlokans/campuslib/internal/entities"
)

type TransactionsController struct {
	lender  Lender
	auditor *audit.Service
}

func NewTransactionsController(lender Lender, auditor *audit.Service) *TransactionsController {
	return &TransactionsController{lender: lender, auditor: auditor}
}

// GET /api/transactions lists the caller's open loans.
func (tc *TransactionsController) ListOpen(c *gin.Context) {
	txns, err := tc.lender.ListOpen(c.Request.Context(), GetStudentID(c))
	if err != nil {
		respondDomainError(c, err, "list open transactions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// GET /api/transactions/history lists every loan of the caller, newest first.
func (tc *TransactionsController) History(c *gin.Context) {
	txns, err := tc.lender.ListForStudent(c.Request.Context(), GetStudentID(c))
	if err != nil {
		respondDomainError(c, err, "list transaction history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

func (tc *TransactionsController) Get(c *gin.Context) {
	txn, ok := tc.loadOwn(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, txn)
}

// POST /api/transactions/:id/return
func (tc *TransactionsController) Return(c *gin.Context) {
	txn, ok := tc.loadOwn(c)
	if !ok {
		return
	}

	returned, err := tc.lender.Return(c.Request.Context(), txn.ID, nil)
	if err != nil {
		respondDomainError(c, err, "return")
		return
	}

	if tc.auditor != nil {
		tc.auditor.LogLending("return", returned, requestInfo(c))
	}
	c.JSON(http.StatusOK, returned)
}

// loadOwn fetches the :id transaction if it belongs to the caller.
// Other students' transactions are reported as missing.
func (tc *TransactionsController) loadOwn(c *gin.Context) (*entities.Transaction, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}

	txn, err := tc.lender.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get transaction")
		return nil, false
	}
	if txn.StudentID != GetStudentID(c) {
		respondDomainError(c, fmt.Errorf("transaction %d: %w", id, apperrors.ErrNotFound), "get transaction")
		return nil, false
	}
	return txn, true
}
