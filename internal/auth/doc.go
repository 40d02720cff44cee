// Package auth provides session authentication for the JSON API.
//
// Students sign up or log in through /api/signup and /api/login; a session
// cookie (alexedwards/scs, stored in SQLite) then carries the student id. The
// Middleware resolves that id on every protected request and makes it
// available to handlers:
//
//	studentID := auth.GetStudentID(c)
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # CSRF key, auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h           # Session duration
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//	AUTH_CSRF_ENABLED=false             # gorilla/csrf on mutating requests
//
// Login attempts are rate limited per client IP and email.
package auth
