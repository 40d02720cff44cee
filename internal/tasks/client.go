package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campuslib/internal/database"
)

const tasksBusyTimeout = 5 * time.Second

// Client runs the background queues on a SQLite file of their own, so a
// long task never holds the library database's write lock.
type Client struct {
	backlite *backlite.Client
	db       *sql.DB
	cfg      Config

	mu      sync.Mutex
	queues  map[string]bool
	running bool
}

func NewClient(tasksDBPath string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite3", database.DSN(tasksDBPath, tasksBusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open tasks database: %w", err)
	}
	// Workers each hold a connection while they run; leave room for enqueues.
	db.SetMaxOpenConns(cfg.Workers + 4)
	db.SetMaxIdleConns(cfg.Workers + 1)
	db.SetConnMaxLifetime(time.Hour)

	bl, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          queueLogger{},
	})
	if err == nil {
		err = bl.Install()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("set up task queue: %w", err)
	}

	return &Client{backlite: bl, db: db, cfg: cfg, queues: map[string]bool{}}, nil
}

// Register adds queues. Call it before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range queues {
		c.backlite.Register(q)
		c.queues[q.Config().Name] = true
	}
}

// Start runs the workers until Stop; it does not block.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	queues := len(c.queues)
	c.mu.Unlock()

	log.Printf("[TASK] %d workers consuming %d queues", c.cfg.Workers, queues)
	c.backlite.Start(ctx)
}

// Stop waits for running tasks until ctx expires and reports whether they
// all finished.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return true
	}
	c.running = false

	if !c.backlite.Stop(ctx) {
		log.Printf("[TASK] shutdown deadline hit with tasks still running")
		return false
	}
	log.Printf("[TASK] workers stopped")
	return true
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Ping checks that the queue database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Enqueue stores task for the workers and returns its id. The task's queue
// must have been registered.
func (c *Client) Enqueue(ctx context.Context, task backlite.Task) (string, error) {
	name := task.Config().Name
	c.mu.Lock()
	known := c.queues[name]
	c.mu.Unlock()
	if !known {
		return "", fmt.Errorf("enqueue: queue %q is not registered", name)
	}

	ids, err := c.backlite.Add(task).Ctx(ctx).Save()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return ids[0], nil
}

// Status looks up a task by id. Tasks past their queue's retention report
// backlite.TaskStatusNotFound.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.backlite.Status(ctx, taskID)
}

// queueLogger routes backlite's messages through the standard logger.
type queueLogger struct{}

func (queueLogger) Info(message string, params ...any) {
	log.Println(formatQueueMessage("[TASK]", message, params))
}

func (queueLogger) Error(message string, params ...any) {
	log.Println(formatQueueMessage("[TASK ERROR]", message, params))
}

// backlite passes structured key/value pairs after the message.
func formatQueueMessage(prefix, message string, params []any) string {
	out := prefix + " " + message
	for i := 0; i+1 < len(params); i += 2 {
		out += fmt.Sprintf(" %v=%v", params[i], params[i+1])
	}
	if len(params)%2 == 1 {
		out += fmt.Sprintf(" %v", params[len(params)-1])
	}
	return out
}
