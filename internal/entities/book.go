package entities

import (
	"time"

	"gorm.io/gorm"
)

// Book is a catalog title together with its copy counters.
// AvailableCopies is only ever changed through conditional updates that keep
// 0 <= AvailableCopies <= TotalCopies.
type Book struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"not null;index;size:512" json:"title"`
	Author          string         `gorm:"index;size:256" json:"author,omitempty"`
	ISBN            *string        `gorm:"size:20" json:"isbn,omitempty"` // unique among live books, see database.NewDatabase
	TotalCopies     int            `gorm:"not null;check:chk_books_total_copies,total_copies >= 0" json:"total_copies"`
	AvailableCopies int            `gorm:"not null;check:chk_books_available_copies,available_copies >= 0 AND available_copies <= total_copies" json:"available_copies"`
	CoverURL        string         `gorm:"size:2048" json:"cover_url,omitempty"`
	AddedAt         time.Time      `gorm:"not null;index" json:"added_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
