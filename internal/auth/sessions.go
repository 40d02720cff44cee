package auth

import (
	"database/sql"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/entities"
)

// Session data keys
const (
	SessionKeyStudentID = "student_id"
	SessionKeyEmail     = "email"
	SessionKeyLoginAt   = "login_at"
)

func init() {
	gob.Register(time.Time{})
}

// SessionManager wraps scs.SessionManager with student-specific helpers.
type SessionManager struct {
	*scs.SessionManager
	store *sqlite3store.SQLite3Store
}

// NewSessionManager creates a session manager backed by the sessions table
// in sqlDB (the *sql.DB underneath GORM).
func NewSessionManager(sqlDB *sql.DB, cfg config.Auth) (*SessionManager, error) {
	_, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return nil, err
	}

	lifetime := cfg.SessionLifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}

	sm := scs.New()
	store := sqlite3store.New(sqlDB)
	sm.Store = store
	sm.Lifetime = lifetime
	sm.IdleTimeout = lifetime / 2

	sm.Cookie.Name = "campuslib_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm, store: store}, nil
}

// CreateSession binds the request's session to student. The token is
// renewed first so a pre-login session id cannot be reused.
func (sm *SessionManager) CreateSession(r *http.Request, student *entities.Student) error {
	if err := sm.RenewToken(r.Context()); err != nil {
		return err
	}

	// Stored as int to match GetInt() retrieval
	sm.Put(r.Context(), SessionKeyStudentID, int(student.ID))
	sm.Put(r.Context(), SessionKeyEmail, student.Email)
	sm.Put(r.Context(), SessionKeyLoginAt, time.Now().UTC())
	return nil
}

// DestroySession removes all session data and invalidates the session.
func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetStudentID returns the logged-in student's id, or 0.
func (sm *SessionManager) GetStudentID(r *http.Request) uint {
	return uint(sm.GetInt(r.Context(), SessionKeyStudentID))
}

func (sm *SessionManager) IsAuthenticated(r *http.Request) bool {
	return sm.GetStudentID(r) != 0
}

// SessionData holds the session information for a request.
type SessionData struct {
	StudentID uint      `json:"student_id"`
	Email     string    `json:"email"`
	LoginAt   time.Time `json:"login_at"`
}

// GetSessionData retrieves all session data at once; nil when logged out.
func (sm *SessionManager) GetSessionData(r *http.Request) *SessionData {
	studentID := sm.GetStudentID(r)
	if studentID == 0 {
		return nil
	}

	loginAt, _ := sm.Get(r.Context(), SessionKeyLoginAt).(time.Time)
	return &SessionData{
		StudentID: studentID,
		Email:     sm.GetString(r.Context(), SessionKeyEmail),
		LoginAt:   loginAt,
	}
}

// Close stops the store's expired-session cleanup goroutine.
func (sm *SessionManager) Close() {
	if sm.store != nil {
		sm.store.StopCleanup()
	}
}
