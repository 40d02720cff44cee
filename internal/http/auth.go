package http

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campuslib/internal/apperrors"
	"github.com/mrlokans/campuslib/internal/audit"
	"github.com/mrlokans/campuslib/internal/auth"
	"github.com/mrlokans/campuslib/internal/entities"
	"github.com/mrlokans/campuslib/internal/membership"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	RollNo   string `json:"roll_no"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthController serves signup, login, logout and the caller's profile.
type AuthController struct {
	students    StudentAccounts
	lender      Lender
	sessions    *auth.SessionManager
	rateLimiter *auth.RateLimiter
	auditor     *audit.Service
}

func NewAuthController(students StudentAccounts, lender Lender, sessions *auth.SessionManager, rateLimiter *auth.RateLimiter, auditor *audit.Service) *AuthController {
	return &AuthController{
		students:    students,
		lender:      lender,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		auditor:     auditor,
	}
}

// Signup creates an account and logs the new student in.
func (ac *AuthController) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	student, err := ac.students.Signup(c.Request.Context(), membership.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		RollNo:   req.RollNo,
		Password: req.Password,
	})
	if err != nil {
		ac.logAuth(c, nil, "signup", err)
		respondDomainError(c, err, "signup")
		return
	}

	if err := ac.sessions.CreateSession(c.Request, student); err != nil {
		respondInternalError(c, err, "create session")
		return
	}
	ac.logAuth(c, &student.ID, "signup", nil)
	respondCreated(c, gin.H{"student": student})
}

func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	ip := c.ClientIP()

	if ac.rateLimiter != nil {
		if allowed, retryAfter := ac.rateLimiter.Allow(ip, req.Email); !allowed {
			ac.respondTooManyAttempts(c, retryAfter.Seconds())
			return
		}
	}

	student, err := ac.students.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if !apperrors.IsInvalidCredentials(err) {
			respondDomainError(c, err, "login")
			return
		}
		ac.logAuth(c, nil, "login", err)
		if ac.rateLimiter != nil {
			if locked, retryAfter := ac.rateLimiter.RecordFailure(ip, req.Email); locked {
				log.Printf("[AUTH] login locked out for %s from %s", membership.NormalizeEmail(req.Email), ip)
				ac.respondTooManyAttempts(c, retryAfter.Seconds())
				return
			}
		}
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid email or password", Code: apperrors.Code(err)})
		return
	}

	if ac.rateLimiter != nil {
		ac.rateLimiter.RecordSuccess(ip, req.Email)
	}
	if err := ac.sessions.CreateSession(c.Request, student); err != nil {
		respondInternalError(c, err, "create session")
		return
	}
	ac.logAuth(c, &student.ID, "login", nil)
	c.JSON(http.StatusOK, gin.H{"student": student})
}

func (ac *AuthController) Logout(c *gin.Context) {
	studentID := ac.sessions.GetStudentID(c.Request)
	if err := ac.sessions.DestroySession(c.Request); err != nil {
		respondInternalError(c, err, "destroy session")
		return
	}
	if studentID != 0 {
		ac.logAuth(c, &studentID, "logout", nil)
	}
	respondSuccess(c, "logged out")
}

// Me returns the logged-in student together with what they owe.
func (ac *AuthController) Me(c *gin.Context) {
	student := auth.GetStudent(c)
	if student == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Code: "unauthenticated"})
		return
	}

	resp := gin.H{"student": student}
	if ac.lender != nil {
		fines, err := ac.lender.OutstandingFines(c.Request.Context(), student.ID)
		if err != nil {
			respondDomainError(c, err, "outstanding fines")
			return
		}
		resp["fines"] = fines
	}
	c.JSON(http.StatusOK, resp)
}

// Activity pages through the caller's own audit trail.
func (ac *AuthController) Activity(c *gin.Context) {
	if ac.auditor == nil {
		c.JSON(http.StatusOK, gin.H{"events": []entities.AuditEvent{}, "total": 0})
		return
	}

	limit, offset := 50, 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}

	events, total, err := ac.auditor.GetEvents(GetStudentID(c), limit, offset)
	if err != nil {
		respondInternalError(c, err, "list activity")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":   events,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"has_more": int64(offset+len(events)) < total,
	})
}

func (ac *AuthController) respondTooManyAttempts(c *gin.Context, retryAfter float64) {
	seconds := int(math.Ceil(retryAfter))
	ac.logAuth(c, nil, "login_rate_limited", apperrors.ErrInvalidCredentials)
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error: "too many failed login attempts, try again later",
		Code:  "rate_limited",
		Details: gin.H{
			"retry_after_seconds": seconds,
		},
	})
}

func (ac *AuthController) logAuth(c *gin.Context, studentID *uint, action string, err error) {
	if ac.auditor != nil {
		ac.auditor.LogAuth(studentID, action, requestInfo(c), err)
	}
}
