package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campuslib/internal/entities"
)

// Context keys for student data
const (
	ContextKeyStudentID = "auth_student_id"
	ContextKeyStudent   = "auth_student"
)

// StudentLoader resolves the student stored in a session.
type StudentLoader interface {
	Get(ctx context.Context, id uint) (*entities.Student, error)
}

// Middleware handles authentication for HTTP requests.
type Middleware struct {
	students       StudentLoader
	sessionManager *SessionManager
	publicPaths    map[string]bool
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(students StudentLoader, sessionManager *SessionManager) *Middleware {
	publicPaths := map[string]bool{
		"/health":      true,
		"/ping":        true,
		"/api/signup":  true,
		"/api/login":   true,
		"/api/logout":  true,
		"/favicon.ico": true,
	}

	return &Middleware{
		students:       students,
		sessionManager: sessionManager,
		publicPaths:    publicPaths,
	}
}

// Handler loads the session's student into the context and rejects
// anonymous requests to non-public paths with 401.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if student := m.trySessionAuth(c); student != nil {
			c.Set(ContextKeyStudentID, student.ID)
			c.Set(ContextKeyStudent, student)
			c.Next()
			return
		}

		if m.isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication required",
			"code":  "unauthenticated",
		})
	}
}

// trySessionAuth returns the student bound to the session cookie, or nil.
// A session pointing at a vanished student is treated as logged out.
func (m *Middleware) trySessionAuth(c *gin.Context) *entities.Student {
	if m.sessionManager == nil {
		return nil
	}

	studentID := m.sessionManager.GetStudentID(c.Request)
	if studentID == 0 {
		return nil
	}

	student, err := m.students.Get(c.Request.Context(), studentID)
	if err != nil {
		return nil
	}
	return student
}

func (m *Middleware) isPublicPath(path string) bool {
	if m.publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// RequireAuth rejects requests that reached a route without a student.
// Use it on groups that must stay protected even if mounted on a public path.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetStudentID(c) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  "unauthenticated",
			})
			return
		}
		c.Next()
	}
}

// GetStudentID retrieves the authenticated student's id; 0 when anonymous.
func GetStudentID(c *gin.Context) uint {
	if id, exists := c.Get(ContextKeyStudentID); exists {
		if studentID, ok := id.(uint); ok {
			return studentID
		}
	}
	return 0
}

// GetStudent retrieves the authenticated student, or nil.
func GetStudent(c *gin.Context) *entities.Student {
	if v, exists := c.Get(ContextKeyStudent); exists {
		if student, ok := v.(*entities.Student); ok {
			return student
		}
	}
	return nil
}

func IsAuthenticated(c *gin.Context) bool {
	return GetStudentID(c) != 0
}
