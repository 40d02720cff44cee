package entities

import "time"

type TransactionStatus string

const (
	TransactionStatusBorrowed TransactionStatus = "borrowed"
	TransactionStatusReturned TransactionStatus = "returned"
)

// Transaction records one copy of a book lent to a student.
// ReturnedAt is set exactly when Status is returned; rows are never deleted.
type Transaction struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	StudentID  uint              `gorm:"not null;index:idx_transactions_student_status,priority:1" json:"student_id"`
	BookID     uint              `gorm:"not null;index:idx_transactions_book_status,priority:1" json:"book_id"`
	BorrowedAt time.Time         `gorm:"not null" json:"borrowed_at"`
	DueDate    *time.Time        `gorm:"index" json:"due_date,omitempty"`
	ReturnedAt *time.Time        `gorm:"check:chk_transactions_returned,(returned_at IS NULL) = (status = 'borrowed')" json:"returned_at,omitempty"`
	Status     TransactionStatus `gorm:"not null;size:20;index:idx_transactions_student_status,priority:2;index:idx_transactions_book_status,priority:2;check:chk_transactions_status,status IN ('borrowed','returned')" json:"status"`
	FineAmount Money             `gorm:"not null;check:chk_transactions_fine,fine_amount >= 0" json:"fine_amount"`
	Notes      string            `gorm:"size:1000" json:"notes,omitempty"`
	Student    *Student          `gorm:"foreignKey:StudentID;constraint:OnDelete:RESTRICT" json:"-"`
	Book       *Book             `gorm:"foreignKey:BookID;constraint:OnDelete:RESTRICT" json:"book,omitempty"`
}

func (t *Transaction) IsOpen() bool {
	return t.Status == TransactionStatusBorrowed
}
