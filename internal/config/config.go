package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/mrlokans/campuslib/internal/entities"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Auth
		Catalog
		Lending
		Tasks
		Audit
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path          string
		BusyTimeoutMS int
	}
	Auth struct {
		SessionSecret   string
		SessionLifetime time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS
		MinPasswordLen  int
		CSRFEnabled     bool

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		MaxAttemptsPerIP int           // Failures per IP across all emails (default: 20)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	Catalog struct {
		ShrinkPolicy  string // "reject" or "clamp"
		CoverCacheDir string // empty disables the cover endpoint
	}
	Lending struct {
		DefaultLoanDays     int    // 0 means loans carry no due date
		FinePerDay          string // decimal amount, e.g. "0.50"
		FineGraceDays       int
		FineCap             string // "0" means uncapped
		MaxRetries          int
		RetryBaseDelay      time.Duration
		OverdueScanEnabled  bool
		OverdueScanSchedule string // Cron format: "0 8 * * *" = daily at 08:00
	}
	Tasks struct {
		Enabled         bool
		DatabasePath    string
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Audit struct {
		RetentionDays   int // Days to keep audit events (default: 90)
		CleanupSchedule string
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_busy_timeout_ms", 5000)

	// Auth defaults
	v.SetDefault("auth_session_secret", "")       // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h")  // 24 hours
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_min_password_length", 8)   // bcrypt caps the upper end at 72 bytes
	v.SetDefault("auth_csrf_enabled", false)      // JSON clients opt in
	v.SetDefault("auth_max_login_attempts", 5)    // Max failed attempts
	v.SetDefault("auth_max_attempts_per_ip", 20)  // Failures per IP over all emails
	v.SetDefault("auth_rate_limit_window", "15m") // Window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // Lockout duration

	v.SetDefault("catalog_shrink_policy", ShrinkPolicyReject)
	v.SetDefault("catalog_cover_cache_dir", DefaultCoverCacheDir)

	// Lending defaults
	v.SetDefault("lending_default_loan_days", 14)
	v.SetDefault("lending_fine_per_day", "0.50")
	v.SetDefault("lending_fine_grace_days", 0)
	v.SetDefault("lending_fine_cap", "0")
	v.SetDefault("lending_max_retries", 5)
	v.SetDefault("lending_retry_base_delay", "10ms")
	v.SetDefault("lending_overdue_scan_enabled", true)
	v.SetDefault("lending_overdue_scan_schedule", "0 8 * * *") // Daily at 08:00

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_database_path", DefaultTasksDatabasePath)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("audit_cleanup_schedule", "30 3 * * *")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path:          v.GetString("DATABASE_PATH"),
			BusyTimeoutMS: v.GetInt("DATABASE_BUSY_TIMEOUT_MS"),
		},
		Auth: Auth{
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MinPasswordLen:   v.GetInt("AUTH_MIN_PASSWORD_LENGTH"),
			CSRFEnabled:      v.GetBool("AUTH_CSRF_ENABLED"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			MaxAttemptsPerIP: v.GetInt("AUTH_MAX_ATTEMPTS_PER_IP"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Catalog: Catalog{
			ShrinkPolicy:  v.GetString("CATALOG_SHRINK_POLICY"),
			CoverCacheDir: v.GetString("CATALOG_COVER_CACHE_DIR"),
		},
		Lending: Lending{
			DefaultLoanDays:     v.GetInt("LENDING_DEFAULT_LOAN_DAYS"),
			FinePerDay:          v.GetString("LENDING_FINE_PER_DAY"),
			FineGraceDays:       v.GetInt("LENDING_FINE_GRACE_DAYS"),
			FineCap:             v.GetString("LENDING_FINE_CAP"),
			MaxRetries:          v.GetInt("LENDING_MAX_RETRIES"),
			RetryBaseDelay:      v.GetDuration("LENDING_RETRY_BASE_DELAY"),
			OverdueScanEnabled:  v.GetBool("LENDING_OVERDUE_SCAN_ENABLED"),
			OverdueScanSchedule: v.GetString("LENDING_OVERDUE_SCAN_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			DatabasePath:    v.GetString("TASKS_DATABASE_PATH"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Audit: Audit{
			RetentionDays:   v.GetInt("AUDIT_RETENTION_DAYS"),
			CleanupSchedule: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
	}
}

// Validate checks the values that are parsed lazily by other packages so a
// bad environment fails at startup rather than on the first request.
func (c *Config) Validate() error {
	switch c.Catalog.ShrinkPolicy {
	case ShrinkPolicyReject, ShrinkPolicyClamp:
	default:
		return fmt.Errorf("CATALOG_SHRINK_POLICY must be %q or %q, got %q", ShrinkPolicyReject, ShrinkPolicyClamp, c.Catalog.ShrinkPolicy)
	}
	if c.Lending.DefaultLoanDays < 0 {
		return fmt.Errorf("LENDING_DEFAULT_LOAN_DAYS must not be negative")
	}
	if _, err := entities.ParseMoney(c.Lending.FinePerDay); err != nil {
		return fmt.Errorf("LENDING_FINE_PER_DAY: %w", err)
	}
	if _, err := entities.ParseMoney(c.Lending.FineCap); err != nil {
		return fmt.Errorf("LENDING_FINE_CAP: %w", err)
	}
	if c.Lending.MaxRetries < 1 {
		return fmt.Errorf("LENDING_MAX_RETRIES must be at least 1")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, schedule := range map[string]string{
		"LENDING_OVERDUE_SCAN_SCHEDULE": c.Lending.OverdueScanSchedule,
		"AUDIT_CLEANUP_SCHEDULE":        c.Audit.CleanupSchedule,
	} {
		if _, err := parser.Parse(schedule); err != nil {
			return fmt.Errorf("%s: invalid cron expression %q: %w", name, schedule, err)
		}
	}
	return nil
}
