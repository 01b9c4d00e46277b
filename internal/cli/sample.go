package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/entities"
)

// SampleCommand writes an import template for a class.
type SampleCommand struct {
	Class        string
	Format       string
	OutputPath   string
	DatabasePath string

	Out io.Writer
}

func NewSampleCommand() *SampleCommand {
	return &SampleCommand{Out: os.Stdout}
}

func (cmd *SampleCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)

	fs.StringVar(&cmd.Class, "class", "", "Class to describe, e.g. Group (required)")
	fs.StringVar(&cmd.Format, "format", "xlsx", "Output format: csv, xlsx or xls")
	fs.StringVar(&cmd.OutputPath, "out", "", "Output file, - for stdout (default: sample-<class>.<format>)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the database file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sample -class <class> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Write a spreadsheet showing the columns a class accepts.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Class == "" {
		return fmt.Errorf("required flag -class not provided")
	}
	return nil
}

func (cmd *SampleCommand) Run() error {
	format, err := parseFormat(cmd.Format)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.DatabasePath, false)
	if err != nil {
		return err
	}
	defer s.Close()

	path := cmd.OutputPath
	if path == "" {
		path = fmt.Sprintf("sample-%s.%s", cmd.Class, format)
	}
	w, closeOut, err := createOutput(path, cmd.Out)
	if err != nil {
		return err
	}

	err = bulkloader.SampleFile(context.Background(), s.db.Store(), cmd.Class, format, w)
	if closeErr := closeOut(); err == nil {
		err = closeErr
	}
	if err != nil {
		if path != "-" {
			_ = os.Remove(path)
		}
		return fmt.Errorf("sample failed: %w", err)
	}
	s.audit.LogSample(entities.ImportOriginCLI, cmd.Class, string(format))

	if path != "-" {
		fmt.Fprintf(cmd.Out, "Wrote %s sample to %s\n", cmd.Class, path)
	}
	return nil
}
