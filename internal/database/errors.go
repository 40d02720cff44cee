package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/mrlokans/campuslib/internal/apperrors"
)

// TranslateError maps raw store errors onto the apperrors taxonomy. Errors
// that already carry a sentinel, and errors it does not recognise, are
// returned unchanged. Only typed driver errors are inspected, never message
// text, since messages can echo user input.
func TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsClassified(err):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", apperrors.ErrConflict, err)
	case IsBusy(err):
		return fmt.Errorf("%w: %w", apperrors.ErrConcurrencyConflict, err)
	default:
		return err
	}
}

func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsBusy reports whether err is SQLite refusing the write lock (SQLITE_BUSY
// or SQLITE_LOCKED) after the busy timeout elapsed.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
