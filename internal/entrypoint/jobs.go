package entrypoint

import (
	"context"
	"log"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/scheduler"
	"github.com/mrlokans/campuslib/internal/tasks"
)

const (
	JobOverdueScan  = "overdue_scan"
	JobAuditCleanup = "audit_cleanup"
)

// newScheduler registers the periodic jobs. With a task client each run
// enqueues a task; without one the work runs on the scheduler goroutine.
func newScheduler(cfg *config.Config, app *App, client *tasks.Client) (*scheduler.Scheduler, error) {
	s := scheduler.New(nil)

	scanner := tasks.NewOverdueScanner(app.Ledger, app.Auditor)
	cleanupTask := tasks.CleanupAuditEventsTask{RetentionDays: cfg.Audit.RetentionDays}

	if cfg.Lending.OverdueScanEnabled {
		err := s.Add(scheduler.Job{
			Name:     JobOverdueScan,
			Schedule: cfg.Lending.OverdueScanSchedule,
			Run: func(ctx context.Context) error {
				if client != nil {
					return enqueue(ctx, client, tasks.ScanOverdueTask{})
				}
				return tasks.ScanOverdueProcessor(scanner)(ctx, tasks.ScanOverdueTask{})
			},
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Audit.RetentionDays > 0 {
		err := s.Add(scheduler.Job{
			Name:     JobAuditCleanup,
			Schedule: cfg.Audit.CleanupSchedule,
			Run: func(ctx context.Context) error {
				if client != nil {
					return enqueue(ctx, client, cleanupTask)
				}
				return tasks.CleanupAuditEventsProcessor(app.Auditor)(ctx, cleanupTask)
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func enqueue(ctx context.Context, client *tasks.Client, task backlite.Task) error {
	id, err := client.Enqueue(ctx, task)
	if err != nil {
		return err
	}
	log.Printf("[SCHEDULER] enqueued %s task %s", task.Config().Name, id)
	return nil
}
