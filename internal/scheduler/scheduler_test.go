package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/database"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/tasks"
)

func TestValidateCronSchedule(t *testing.T) {
	assert.NoError(t, ValidateCronSchedule("0 2 * * *"))
	assert.NoError(t, ValidateCronSchedule(MaintenanceSchedule))
	assert.Error(t, ValidateCronSchedule("0 0 2 * * *"), "seconds are not accepted")
	assert.Error(t, ValidateCronSchedule("daily"))
}

func TestNextRunTime(t *testing.T) {
	from := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	next, err := NextRunTime("0 2 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC), next)

}

func TestCronDescription(t *testing.T) {
	tests := []struct {
		schedule string
		expected string
	}{
		{"0 2 * * *", "Daily at 02:00"},
		{MaintenanceSchedule, "Daily at 03:30"},
		{"*/15 * * * *", "Every 15 minutes"},
		{"5 * * * *", "Every hour at :05"},
		{"0 0 * * 0", "Weekly on Sunday at 00:00"},
		{"30 6 * * 7", "Weekly on Sunday at 06:30"},
		{"0 9 1 * *", "Custom schedule: 0 9 1 * *"},
		{"0 9-17 * * *", "Custom schedule: 0 9-17 * * *"},
		{"daily", "Custom schedule: daily"},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			assert.Equal(t, tt.expected, CronDescription(tt.schedule))
		})
	}
}

type exportLog struct {
	classes []string
	rows    []int
	errs    []error
}

func (l *exportLog) LogExport(_ entities.ImportOrigin, class, _ string, rows int, err error) {
	l.classes = append(l.classes, class)
	l.rows = append(l.rows, rows)
	l.errs = append(l.errs, err)
}

func seedCompanies(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "app.db"), database.WithLogLevel(logger.Silent))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = bulkloader.New(db.Store(), bulkloader.DefaultOptions(entities.ClassCompany)).ProcessData(context.Background(), []*bulkloader.Record{
		bulkloader.RecordFrom("Name", "Acme", "Country", "DE"),
		bulkloader.RecordFrom("Name", "Globex", "Country", "US"),
	})
	require.NoError(t, err)
	return db
}

func TestExportAll(t *testing.T) {
	db := seedCompanies(t)
	dir := filepath.Join(t.TempDir(), "exports")
	audit := &exportLog{}

	s := NewExportScheduler(db.Store(), config.ScheduledExport{
		Enabled:  true,
		Schedule: "0 2 * * *",
		Classes:  []string{entities.ClassCompany, "Unknown"},
		Format:   "csv",
		Dir:      dir,
	}, config.Export{}, audit)

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	paths, err := s.ExportAll(context.Background(), now)
	require.Error(t, err, "unknown classes are reported")
	assert.Contains(t, err.Error(), "Unknown")

	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "export-Company-20240301_0200.csv"), paths[0])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Acme")
	assert.Contains(t, string(data), "Globex")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"))
	}

	assert.Equal(t, []string{entities.ClassCompany, "Unknown"}, audit.classes)
	assert.Equal(t, 2, audit.rows[0])
	assert.NoError(t, audit.errs[0])
	assert.Error(t, audit.errs[1])
}

func TestExportAllCombined(t *testing.T) {
	db := seedCompanies(t)
	dir := t.TempDir()
	audit := &exportLog{}

	s := NewExportScheduler(db.Store(), config.ScheduledExport{
		Classes: []string{entities.ClassCompany, entities.ClassGroup},
		Format:  "xlsx",
		Dir:     dir,
		Combine: true,
	}, config.Export{}, audit)

	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	paths, err := s.ExportAll(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	combined := filepath.Join(dir, "export-all-20240301_0200.xlsx")
	assert.Equal(t, combined, paths[2])

	f, err := excelize.OpenFile(combined)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{entities.ClassCompany, entities.ClassGroup}, f.GetSheetList())
	rows, err := f.GetRows(entities.ClassCompany)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header and two companies")

	assert.Equal(t, []string{entities.ClassCompany, entities.ClassGroup, CombinedClass}, audit.classes)
	assert.Equal(t, 2, audit.rows[2])
}

func TestExportSchedulerStart(t *testing.T) {
	db := seedCompanies(t)

	t.Run("Disabled schedulers do not run", func(t *testing.T) {
		s := NewExportScheduler(db.Store(), config.ScheduledExport{}, config.Export{}, nil)
		require.NoError(t, s.Start(context.Background()))
		assert.False(t, s.IsRunning())
		assert.Nil(t, s.GetNextRunTime())
	})

	t.Run("Invalid schedules are rejected", func(t *testing.T) {
		s := NewExportScheduler(db.Store(), config.ScheduledExport{
			Enabled: true, Schedule: "often", Classes: []string{"Company"}, Dir: t.TempDir(),
		}, config.Export{}, nil)
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("Unreadable formats are rejected", func(t *testing.T) {
		s := NewExportScheduler(db.Store(), config.ScheduledExport{
			Enabled: true, Schedule: "0 2 * * *", Classes: []string{"Company"}, Dir: t.TempDir(), Format: "pdf",
		}, config.Export{}, nil)
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("Starts and stops", func(t *testing.T) {
		s := NewExportScheduler(db.Store(), config.ScheduledExport{
			Enabled: true, Schedule: "0 2 * * *", Classes: []string{"Company"}, Dir: t.TempDir(),
		}, config.Export{}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, s.Start(ctx))
		assert.True(t, s.IsRunning())
		require.NotNil(t, s.GetNextRunTime())

		s.Stop()
		assert.False(t, s.IsRunning())
	})
}

type fakeQueue struct {
	tasks []backlite.Task
	err   error
}

func (q *fakeQueue) Enqueue(task backlite.Task) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, task)
	return "id", nil
}

func TestMaintenanceScheduler(t *testing.T) {
	q := &fakeQueue{}
	s := NewMaintenanceScheduler(q, 14, 48)
	require.NoError(t, s.Enqueue())
	assert.Equal(t, []backlite.Task{
		tasks.CleanupAuditEventsTask{RetentionDays: 14},
		tasks.CleanupUploadsTask{MaxAgeHours: 48},
	}, q.tasks)

	assert.Error(t, NewMaintenanceScheduler(&fakeQueue{err: errors.New("closed")}, 1, 1).Enqueue())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.isRunning
	}, time.Second, 10*time.Millisecond)
}
