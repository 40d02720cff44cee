package entities

import "time"

type Student struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"not null;size:200" json:"name"`
	Email        string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	RollNo       *string    `gorm:"uniqueIndex;size:50" json:"roll_no,omitempty"`
	PasswordHash string     `gorm:"not null;size:255" json:"-"` // bcrypt hash, never serialized
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
