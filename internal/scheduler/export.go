package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

// ExportAuditor records finished exports.
type ExportAuditor interface {
	LogExport(origin entities.ImportOrigin, class, fileName string, rows int, err error)
}

// ExportScheduler writes periodic exports of the configured classes into
// a directory.
type ExportScheduler struct {
	store   bulkloader.Store
	config  config.ScheduledExport
	export  config.Export
	auditor ExportAuditor

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc

	// exporting is separate from mu: Stop holds mu while waiting for a job.
	exporting atomic.Bool
}

// NewExportScheduler creates a new scheduler instance
func NewExportScheduler(store bulkloader.Store, cfg config.ScheduledExport, export config.Export, auditor ExportAuditor) *ExportScheduler {
	return &ExportScheduler{
		store:   store,
		config:  cfg,
		export:  export,
		auditor: auditor,
		cron:    newCron(),
	}
}

// Start begins the scheduler if scheduled exports are enabled
func (s *ExportScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.config.Enabled {
		log.Printf("Export scheduler: disabled")
		return nil
	}

	if s.config.Dir == "" || len(s.config.Classes) == 0 {
		log.Printf("Export scheduler: export directory or classes not configured, skipping")
		return nil
	}

	if err := ValidateCronSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.Schedule, err)
	}
	if _, err := s.format(); err != nil {
		return err
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runExport(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule export job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := NextRunTime(s.config.Schedule, time.Now())
	log.Printf("Export scheduler: started with schedule '%s' (%s). Next run: %v",
		s.config.Schedule,
		CronDescription(s.config.Schedule),
		nextRun)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for a running export and stops the scheduler
func (s *ExportScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	log.Printf("Export scheduler: stopped")
}

// IsRunning returns whether the scheduler is active
func (s *ExportScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next export will occur
func (s *ExportScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *ExportScheduler) runExport(ctx context.Context) {
	if !s.exporting.CompareAndSwap(false, true) {
		log.Printf("Export scheduler: previous export still running, skipping")
		return
	}
	defer s.exporting.Store(false)

	startTime := time.Now()
	paths, err := s.ExportAll(ctx, startTime)
	if err != nil {
		log.Printf("Export scheduler: finished with errors: %v", err)
	}
	log.Printf("Export scheduler: wrote %d files in %v", len(paths), time.Since(startTime).Round(time.Millisecond))
}

// ExportAll writes one file per configured class and returns the paths
// written. A failing class does not stop the others.
func (s *ExportScheduler) ExportAll(ctx context.Context, now time.Time) ([]string, error) {
	format, err := s.format()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var (
		paths  []string
		sheets []spreadsheet.SheetFile
		total  int
		errs   []error
	)
	for _, class := range s.config.Classes {
		path, rows, err := s.exportClass(ctx, class, format, now)
		if s.auditor != nil {
			s.auditor.LogExport(entities.ImportOriginSchedule, class, filepath.Base(path), rows, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", class, err))
			continue
		}
		paths = append(paths, path)
		sheets = append(sheets, spreadsheet.SheetFile{Sheet: class, Path: path})
		total += rows
	}

	if s.config.Combine && format != spreadsheet.FormatCSV && len(sheets) > 0 {
		path, err := s.combine(sheets, format, now)
		if s.auditor != nil {
			s.auditor.LogExport(entities.ImportOriginSchedule, CombinedClass, filepath.Base(path), total, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("combined workbook: %w", err))
		} else {
			paths = append(paths, path)
		}
	}
	return paths, errors.Join(errs...)
}

// CombinedClass names the workbook holding every exported class in the
// audit log and its file name.
const CombinedClass = "all"

// combine merges the per-class workbooks into export-all-<stamp>.
func (s *ExportScheduler) combine(sheets []spreadsheet.SheetFile, format spreadsheet.Format, now time.Time) (string, error) {
	path := filepath.Join(s.config.Dir, bulkloader.ExportFileName("export-"+CombinedClass, string(format), now))
	err := writeAtomically(path, func(f *os.File) error {
		return spreadsheet.MergeFiles(f, sheets...)
	})
	return path, err
}

// writeAtomically writes next to path and renames so readers never see a
// partial file.
func writeAtomically(path string, write func(f *os.File) error) error {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move export file: %w", err)
	}
	return nil
}

func (s *ExportScheduler) exportClass(ctx context.Context, class string, format spreadsheet.Format, now time.Time) (string, int, error) {
	opts := bulkloader.DefaultExportOptions(class)
	opts.Format = format
	opts.IsLimited = false
	opts.Creator = s.export.Creator
	if s.export.SanitizeChars != "" {
		opts.SanitizeChars = s.export.SanitizeChars
	}

	x := bulkloader.NewExporter(s.store, opts)
	path := filepath.Join(s.config.Dir, x.FileName(now))

	var rows int
	err := writeAtomically(path, func(f *os.File) error {
		var err error
		rows, err = x.Write(ctx, f, x.Entities(ctx))
		return err
	})
	return path, rows, err
}

func (s *ExportScheduler) format() (spreadsheet.Format, error) {
	ext := s.config.Format
	if ext == "" {
		ext = string(spreadsheet.FormatCSV)
	}
	format, err := spreadsheet.FormatForExtension(ext)
	if err != nil {
		return "", fmt.Errorf("invalid scheduled export format %q: %w", ext, err)
	}
	if !format.Writable() {
		return "", fmt.Errorf("cannot write scheduled exports as %s", format)
	}
	return format, nil
}
