package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/entities"
)

// ExportCommand writes stored records of a class to a spreadsheet file.
type ExportCommand struct {
	Class        string
	Format       string
	OutputPath   string
	DatabasePath string
	Columns      string
	Sort         string
	Limit        int
	All          bool
	Verbose      bool

	Out io.Writer
	now func() time.Time
}

func NewExportCommand() *ExportCommand {
	return &ExportCommand{Out: os.Stdout, now: time.Now}
}

func (cmd *ExportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)

	fs.StringVar(&cmd.Class, "class", "", "Class to export, e.g. Member (required)")
	fs.StringVar(&cmd.Format, "format", "xlsx", "Output format: csv, xlsx or xls")
	fs.StringVar(&cmd.OutputPath, "out", "", "Output file, - for stdout (default: export-<class>-<timestamp>.<format>)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the database file")
	fs.StringVar(&cmd.Columns, "columns", "", "Comma separated columns (default: the class export fields)")
	fs.StringVar(&cmd.Sort, "sort", "", "Sort field, prefix with - for descending")
	fs.IntVar(&cmd.Limit, "limit", bulkloader.DefaultExportLimit, "Maximum number of rows")
	fs.BoolVar(&cmd.All, "all", false, "Export every row, ignoring -limit")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Print SQL statements")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s export -class <class> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Export records to a spreadsheet.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s export -class Member -format csv -out members.csv -all\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Class == "" {
		return fmt.Errorf("required flag -class not provided")
	}
	if cmd.Limit < 1 {
		return fmt.Errorf("-limit must be positive")
	}
	return nil
}

func (cmd *ExportCommand) options() (bulkloader.ExportOptions, error) {
	format, err := parseFormat(cmd.Format)
	if err != nil {
		return bulkloader.ExportOptions{}, err
	}
	opts := bulkloader.DefaultExportOptions(cmd.Class)
	opts.Format = format
	opts.Limit = cmd.Limit
	opts.IsLimited = !cmd.All
	opts.Order = cmd.Sort
	opts.Creator = "sheetloader"
	if cmd.Columns != "" {
		var fields []string
		for _, f := range strings.Split(cmd.Columns, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		opts.Columns = bulkloader.Columns(fields...)
	}
	return opts, nil
}

func (cmd *ExportCommand) Run() error {
	opts, err := cmd.options()
	if err != nil {
		return err
	}

	s, err := openSession(cmd.DatabasePath, cmd.Verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	x := bulkloader.NewExporter(s.db.Store(), opts)
	path := cmd.OutputPath
	if path == "" {
		path = x.FileName(cmd.now())
	}

	w, closeOut, err := createOutput(path, cmd.Out)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rows, err := x.Write(ctx, w, x.Entities(ctx))
	if closeErr := closeOut(); err == nil {
		err = closeErr
	}
	s.audit.LogExport(entities.ImportOriginCLI, cmd.Class, path, rows, err)
	if err != nil {
		if path != "-" {
			_ = os.Remove(path)
		}
		return fmt.Errorf("export failed: %w", err)
	}

	if path != "-" {
		fmt.Fprintf(cmd.Out, "Exported %d %s records to %s\n", rows, cmd.Class, path)
	}
	return nil
}
