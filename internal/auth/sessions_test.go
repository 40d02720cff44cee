package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/database"
	"github.com/mrlokans/campuslib/internal/entities"
)

func setupSessionManager(t *testing.T) *SessionManager {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "sessions.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	sm, err := NewSessionManager(sqlDB, config.Auth{SessionLifetime: time.Hour})
	require.NoError(t, err)
	t.Cleanup(sm.Close)
	return sm
}

type fakeStudents map[uint]*entities.Student

func (f fakeStudents) Get(_ context.Context, id uint) (*entities.Student, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, apperrors.ErrNotFound
}

// sessionRouter mounts the session and auth middleware with a login route
// that binds the session to the student named in the ?id= query.
func sessionRouter(sm *SessionManager, students fakeStudents) *gin.Engine {
	router := gin.New()
	router.Use(sm.SessionLoadSave())
	router.Use(NewMiddleware(students, sm).Handler())

	router.POST("/api/login", func(c *gin.Context) {
		student := students[1]
		if err := sm.CreateSession(c.Request, student); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	router.POST("/api/logout", func(c *gin.Context) {
		_ = sm.DestroySession(c.Request)
		c.Status(http.StatusOK)
	})
	router.GET("/api/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":      GetStudentID(c),
			"session": sm.GetSessionData(c.Request),
		})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": IsAuthenticated(c)})
	})
	return router
}

func serve(router *gin.Engine, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSessionManager_LoginLifecycle(t *testing.T) {
	sm := setupSessionManager(t)
	students := fakeStudents{1: {ID: 1, Name: "Ada", Email: "ada@campus.edu"}}
	router := sessionRouter(sm, students)

	login := serve(router, http.MethodPost, "/api/login", nil)
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "campuslib_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	who := serve(router, http.MethodGet, "/api/whoami", cookies)
	require.Equal(t, http.StatusOK, who.Code)
	assert.Contains(t, who.Body.String(), `"id":1`)
	assert.Contains(t, who.Body.String(), `"email":"ada@campus.edu"`)

	logout := serve(router, http.MethodPost, "/api/logout", cookies)
	require.Equal(t, http.StatusOK, logout.Code)

	after := serve(router, http.MethodGet, "/api/whoami", cookies)
	assert.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestSessionManager_TokenRenewedOnLogin(t *testing.T) {
	sm := setupSessionManager(t)
	router := sessionRouter(sm, fakeStudents{1: {ID: 1, Email: "ada@campus.edu"}})

	first := serve(router, http.MethodPost, "/api/login", nil).Result().Cookies()
	require.Len(t, first, 1)
	second := serve(router, http.MethodPost, "/api/login", first).Result().Cookies()
	require.Len(t, second, 1)

	assert.NotEqual(t, first[0].Value, second[0].Value)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/whoami", first).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/whoami", second).Code)
}
