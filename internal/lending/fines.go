package lending

import (
	"time"

	"github.com/mrlokans/campuslib/internal/entities"
)

const day = 24 * time.Hour

// FinePolicy computes the fine owed for a loan returned at returnedAt.
// A nil due date means the loan had no deadline.
type FinePolicy interface {
	Fine(due *time.Time, returnedAt time.Time) entities.Money
}

// FinePolicyFunc adapts a function to FinePolicy.
type FinePolicyFunc func(due *time.Time, returnedAt time.Time) entities.Money

func (f FinePolicyFunc) Fine(due *time.Time, returnedAt time.Time) entities.Money {
	return f(due, returnedAt)
}

// NoFines never charges.
var NoFines = FinePolicyFunc(func(*time.Time, time.Time) entities.Money { return 0 })

// DailyRate charges PerDay for every started day past the due date, after
// GraceDays free days. A positive Cap bounds the total.
type DailyRate struct {
	PerDay    entities.Money
	GraceDays int
	Cap       entities.Money
}

func (p DailyRate) Fine(due *time.Time, returnedAt time.Time) entities.Money {
	days := OverdueDays(due, returnedAt) - p.GraceDays
	if days <= 0 || p.PerDay <= 0 {
		return 0
	}
	fine := entities.Money(days) * p.PerDay
	if p.Cap > 0 && fine > p.Cap {
		return p.Cap
	}
	return fine
}

// OverdueDays counts started days between due and at; zero when not late.
func OverdueDays(due *time.Time, at time.Time) int {
	if due == nil || !at.After(*due) {
		return 0
	}
	late := at.Sub(*due)
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}
