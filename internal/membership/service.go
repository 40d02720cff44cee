// Package membership owns student accounts: signup, credential checks and
// lookup by id for session handling. Password hashing is delegated to a
// Hasher so the package stays independent of the hashing scheme.
package membership

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/database/students"
	"github.com/mrlokans/campuslib/internal/entities"
)

// Hasher turns passwords into opaque hashes and checks them.
// Hash returns an error wrapping apperrors.ErrValidation when the password
// does not meet the hashing policy.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

type SignupInput struct {
	Name     string
	Email    string
	RollNo   string
	Password string
}

type Service struct {
	repo   *students.Repository
	hasher Hasher
	clock  func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(repo *students.Repository, hasher Hasher) *Service {
	return &Service{repo: repo, hasher: hasher, clock: time.Now}
}

// WithClock replaces the time source used for login bookkeeping.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (*entities.Student, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	rollNo := strings.TrimSpace(in.RollNo)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	case email == "":
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	case in.Password == "":
		return nil, fmt.Errorf("%w: password is required", apperrors.ErrValidation)
	case len(name) > 200:
		return nil, fmt.Errorf("%w: name exceeds 200 characters", apperrors.ErrValidation)
	case len(rollNo) > 50:
		return nil, fmt.Errorf("%w: roll_no exceeds 50 characters", apperrors.ErrValidation)
	}
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: email %q is not a valid address", apperrors.ErrValidation, in.Email)
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email is already registered", apperrors.ErrConflict)
	}
	if rollNo != "" {
		exists, err := s.repo.RollNoExists(ctx, rollNo)
		if err != nil {
			return nil, fmt.Errorf("signup: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: roll number is already registered", apperrors.ErrConflict)
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("signup: hash password: %w", err)
	}

	student := &entities.Student{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if rollNo != "" {
		student.RollNo = &rollNo
	}

	// The unique indexes catch signups racing past the checks above.
	if err := s.repo.Create(ctx, student); err != nil {
		if apperrors.IsConflict(err) {
			return nil, fmt.Errorf("%w: email or roll number is already registered", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("signup: %w", err)
	}
	return student, nil
}

// Authenticate returns the student owning email if password matches.
// Unknown emails and wrong passwords fail identically with
// apperrors.ErrInvalidCredentials, and both pay for one hash comparison.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entities.Student, error) {
	student, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
		_ = s.hasher.Verify(s.dummy(), password)
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Verify(student.PasswordHash, password); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.clock().UTC()
	if err := s.repo.UpdateLastLogin(ctx, student.ID, now); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	student.LastLoginAt = &now
	return student, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*entities.Student, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("student %d: %w", id, err)
	}
	return student, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("campuslib-timing-equalizer")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func validEmail(email string) bool {
	if len(email) > 255 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
