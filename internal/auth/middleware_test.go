package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_Handler(t *testing.T) {
	sm := setupSessionManager(t)
	students := fakeStudents{1: {ID: 1, Email: "ada@campus.edu"}}
	router := sessionRouter(sm, students)

	t.Run("anonymous request to a protected path is 401", func(t *testing.T) {
		rr := serve(router, http.MethodGet, "/api/whoami", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "unauthenticated")
	})

	t.Run("public paths pass through anonymously", func(t *testing.T) {
		rr := serve(router, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"authenticated":false`)
	})

	t.Run("public paths see the student when logged in", func(t *testing.T) {
		cookies := serve(router, http.MethodPost, "/api/login", nil).Result().Cookies()
		rr := serve(router, http.MethodGet, "/health", cookies)
		assert.Contains(t, rr.Body.String(), `"authenticated":true`)
	})

	t.Run("session of a vanished student is treated as anonymous", func(t *testing.T) {
		cookies := serve(router, http.MethodPost, "/api/login", nil).Result().Cookies()
		require.Len(t, cookies, 1)
		saved := students[1]
		delete(students, 1)
		defer func() { students[1] = saved }()

		rr := serve(router, http.MethodGet, "/api/whoami", cookies)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown cookie is ignored", func(t *testing.T) {
		rr := serve(router, http.MethodGet, "/api/whoami", []*http.Cookie{{Name: "campuslib_session", Value: "bogus"}})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
