package cli

import (
	"fmt"
	"io"
	"os"

	"gorm.io/gorm/logger"

	"github.com/mrlokans/sheetloader/internal/audit"
	"github.com/mrlokans/sheetloader/internal/database"
	auditRepo "github.com/mrlokans/sheetloader/internal/database/audit"
	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

// session bundles what a command needs from the database.
type session struct {
	db    *database.Database
	audit *audit.Service
}

func openSession(path string, verbose bool) (*session, error) {
	level := logger.Silent
	if verbose {
		level = logger.Info
	}
	db, err := database.NewDatabase(path, database.WithLogLevel(level))
	if err != nil {
		return nil, err
	}
	return &session{db: db, audit: audit.NewService(auditRepo.NewRepository(db.DB))}, nil
}

// Close waits for pending audit writes and closes the database.
func (s *session) Close() error {
	s.audit.Wait()
	return s.db.Close()
}

func parseFormat(ext string) (spreadsheet.Format, error) {
	format, err := spreadsheet.FormatForExtension(ext)
	if err != nil {
		return "", err
	}
	if !format.Writable() {
		return "", fmt.Errorf("cannot write %s files", format)
	}
	return format, nil
}

// createOutput opens path for writing; "-" means stdout.
func createOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}
