package entrypoint

import (
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/campuslib/internal/audit"
	"github.com/mrlokans/campuslib/internal/auth"
	"github.com/mrlokans/campuslib/internal/catalog"
	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/database"
	auditrepo "github.com/mrlokans/campuslib/internal/database/audit"
	"github.com/mrlokans/campuslib/internal/database/students"
	"github.com/mrlokans/campuslib/internal/entities"
	"github.com/mrlokans/campuslib/internal/lending"
	"github.com/mrlokans/campuslib/internal/membership"
	"github.com/mrlokans/campuslib/internal/retry"
)

// App holds the services shared by the server and the CLI commands.
type App struct {
	Config  *config.Config
	DB      *database.Database
	Catalog *catalog.Service
	Members *membership.Service
	Ledger  *lending.Ledger
	Auditor *audit.Service
}

// NewApp validates cfg, opens the database and wires the services.
func NewApp(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	fines, err := FinePolicy(cfg.Lending)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Path, database.Options{
		BusyTimeout: time.Duration(cfg.Database.BusyTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	retryOpts := []retry.Option{
		retry.WithMaxAttempts(cfg.Lending.MaxRetries),
		retry.WithBaseDelay(cfg.Lending.RetryBaseDelay),
	}
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost, cfg.Auth.MinPasswordLen)

	return &App{
		Config: cfg,
		DB:     db,
		Catalog: catalog.NewService(db.DB,
			catalog.WithShrinkPolicy(catalog.ShrinkPolicy(cfg.Catalog.ShrinkPolicy)),
			catalog.WithRetry(retryOpts...),
		),
		Members: membership.NewService(students.NewRepository(db.DB), hasher),
		Ledger: lending.NewLedger(db.DB,
			lending.WithFinePolicy(fines),
			lending.WithRetry(retryOpts...),
		),
		Auditor: audit.NewService(auditrepo.NewRepository(db.DB)),
	}, nil
}

// Close flushes pending audit writes and closes the database.
func (a *App) Close() {
	a.Auditor.Wait()
	if err := a.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// FinePolicy builds the overdue fine policy from the lending settings.
// A zero daily rate disables fines.
func FinePolicy(cfg config.Lending) (lending.FinePolicy, error) {
	perDay, err := entities.ParseMoney(cfg.FinePerDay)
	if err != nil {
		return nil, fmt.Errorf("LENDING_FINE_PER_DAY: %w", err)
	}
	if perDay == 0 {
		return lending.NoFines, nil
	}
	capAmount, err := entities.ParseMoney(cfg.FineCap)
	if err != nil {
		return nil, fmt.Errorf("LENDING_FINE_CAP: %w", err)
	}
	return lending.DailyRate{PerDay: perDay, GraceDays: cfg.FineGraceDays, Cap: capAmount}, nil
}
