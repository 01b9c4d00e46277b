package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/sheetloader/internal/tasks"
)

// MaintenanceSchedule runs retention cleanups daily at 03:30.
const MaintenanceSchedule = "30 3 * * *"

// Enqueuer adds a task to the background queue.
type Enqueuer interface {
	Enqueue(task backlite.Task) (string, error)
}

// MaintenanceScheduler queues the audit and upload cleanup tasks.
type MaintenanceScheduler struct {
	queue         Enqueuer
	retentionDays int
	uploadMaxAge  int

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewMaintenanceScheduler creates a scheduler queueing cleanups with the
// given audit retention in days and upload retention in hours.
func NewMaintenanceScheduler(queue Enqueuer, retentionDays, uploadMaxAgeHours int) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		queue:         queue,
		retentionDays: retentionDays,
		uploadMaxAge:  uploadMaxAgeHours,
		cron:          newCron(),
	}
}

func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if _, err := s.cron.AddFunc(MaintenanceSchedule, func() {
		if err := s.Enqueue(); err != nil {
			log.Printf("Maintenance scheduler: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Maintenance scheduler: started with schedule '%s'", MaintenanceSchedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	log.Printf("Maintenance scheduler: stopped")
}

// Enqueue queues one run of every cleanup task.
func (s *MaintenanceScheduler) Enqueue() error {
	if _, err := s.queue.Enqueue(tasks.CleanupAuditEventsTask{RetentionDays: s.retentionDays}); err != nil {
		return fmt.Errorf("failed to queue audit cleanup: %w", err)
	}
	if _, err := s.queue.Enqueue(tasks.CleanupUploadsTask{MaxAgeHours: s.uploadMaxAge}); err != nil {
		return fmt.Errorf("failed to queue upload cleanup: %w", err)
	}
	return nil
}
