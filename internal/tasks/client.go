package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// ErrNoTaskID is returned when backlite saves a task without reporting its ID.
var ErrNoTaskID = errors.New("no task ID returned")

// Client runs the background import and maintenance queues on a sqlite
// file of their own, so long imports never hold locks on the main database.
type Client struct {
	client  *backlite.Client
	db      *sql.DB
	workers int
	started atomic.Bool
}

// TasksDBPath derives the queue database path from the main database path:
// data/app.db becomes data/app-tasks.db.
func TasksDBPath(mainDBPath string) string {
	ext := filepath.Ext(mainDBPath)
	return strings.TrimSuffix(mainDBPath, ext) + "-tasks" + ext
}

func tasksDSN(path string) string {
	return path + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
}

// NewClient opens the queue database, installs the backlite schema and
// returns a client ready for Register.
func NewClient(tasksDBPath string, cfg Config) (*Client, error) {
	if dir := filepath.Dir(tasksDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create tasks database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", tasksDSN(tasksDBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}
	// Every worker may hold a connection while the API enqueues.
	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          taskLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	return &Client{client: client, db: db, workers: cfg.Workers}, nil
}

// Register adds queues. It must be called before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start runs the workers until ctx is cancelled or Stop is called. Calling
// it again is a no-op.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[TASK] Queue started with %d workers", c.workers)
	c.client.Start(ctx)
}

// Running reports whether Start has been called and Stop has not.
func (c *Client) Running() bool {
	return c.started.Load()
}

// Stop waits for running tasks until ctx expires. It reports whether every
// worker finished in time.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.started.CompareAndSwap(true, false) {
		return true
	}

	log.Println("[TASK] Stopping queue...")
	if !c.client.Stop(ctx) {
		log.Println("[TASK] Queue stopped with timeout, some tasks may be retried on next start")
		return false
	}
	log.Println("[TASK] Queue stopped gracefully")
	return true
}

// Close releases the queue database. Call it after Stop.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Enqueue saves one task and returns its ID.
func (c *Client) Enqueue(task backlite.Task) (string, error) {
	ids, err := c.client.Add(task).Save()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("failed to enqueue task: %w", ErrNoTaskID)
	}
	return ids[0], nil
}

// Status returns the backlite status of a task.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.client.Status(ctx, taskID)
}

var statusNames = map[backlite.TaskStatus]string{
	backlite.TaskStatusPending:  "pending",
	backlite.TaskStatusRunning:  "running",
	backlite.TaskStatusSuccess:  "success",
	backlite.TaskStatusFailure:  "failure",
	backlite.TaskStatusNotFound: "not_found",
}

// StatusName renders a backlite status for API responses.
func StatusName(status backlite.TaskStatus) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "unknown"
}

// taskLogger routes backlite's messages to the standard logger.
type taskLogger struct{}

func (taskLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (taskLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
