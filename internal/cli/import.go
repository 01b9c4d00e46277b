package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/database/imports"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/loaders"
)

// ImportCommand loads a spreadsheet file into the database.
type ImportCommand struct {
	Class            string
	FilePath         string
	DatabasePath     string
	Delimiter        string
	Preview          bool
	UseTransaction   bool
	DeleteExisting   bool
	NoHeader         bool
	MakeRelations    bool
	CheckPermissions bool
	Verbose          bool

	Out io.Writer
}

func NewImportCommand() *ImportCommand {
	return &ImportCommand{Out: os.Stdout}
}

func (cmd *ImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)

	fs.StringVar(&cmd.Class, "class", "", "Class to import into, e.g. Member (required)")
	fs.StringVar(&cmd.FilePath, "file", "", "Path to the CSV or XLSX file (required)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the database file")
	fs.StringVar(&cmd.Delimiter, "delimiter", "auto", "CSV delimiter: a single character, \\t or auto")
	fs.BoolVar(&cmd.Preview, "preview", false, "Report what would change without writing")
	fs.BoolVar(&cmd.UseTransaction, "transaction", false, "Roll back the whole file when a row fails")
	fs.BoolVar(&cmd.DeleteExisting, "clear", false, "Delete existing records of the class before importing")
	fs.BoolVar(&cmd.NoHeader, "no-header", false, "The file has no header row")
	fs.BoolVar(&cmd.MakeRelations, "relations", false, "Resolve Relation.Field columns")
	fs.BoolVar(&cmd.CheckPermissions, "check-permissions", false, "Honor per-record create, edit and delete permissions")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Print every record and SQL statement")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import -class <class> -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Import spreadsheet rows into the database.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Preview a member import:\n")
		fmt.Fprintf(os.Stderr, "  %s import -class Member -file members.xlsx -preview\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Replace all groups from a semicolon separated file:\n")
		fmt.Fprintf(os.Stderr, "  %s import -class Group -file groups.csv -delimiter ';' -clear -transaction\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Class == "" {
		return fmt.Errorf("required flag -class not provided")
	}
	if cmd.FilePath == "" {
		return fmt.Errorf("required flag -file not provided")
	}
	return nil
}

func (cmd *ImportCommand) options() bulkloader.Options {
	opts := bulkloader.DefaultOptions(cmd.Class)
	opts.Delimiter = cmd.Delimiter
	opts.HasHeaderRow = !cmd.NoHeader
	opts.UseTransaction = cmd.UseTransaction
	opts.DeleteExistingRecords = cmd.DeleteExisting
	opts.MakeRelations = cmd.MakeRelations
	opts.CheckPermissions = cmd.CheckPermissions
	return opts
}

func (cmd *ImportCommand) Run() error {
	fmt.Fprintf(cmd.Out, "Importing %s into %s\n", cmd.FilePath, cmd.Class)
	if cmd.Preview {
		fmt.Fprintln(cmd.Out, "PREVIEW MODE - No changes will be made")
	}

	s, err := openSession(cmd.DatabasePath, cmd.Verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	runs := imports.NewRepository(s.db.DB)
	run := &entities.ImportRun{
		Class:    cmd.Class,
		FileName: cmd.FilePath,
		Origin:   entities.ImportOriginCLI,
		Preview:  cmd.Preview,
	}
	if err := runs.Start(run); err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}
	_ = runs.MarkRunning(run.ID)

	l := loaders.For(s.db.Store(), cmd.options())
	ctx := context.Background()
	src := bulkloader.FileSource(cmd.FilePath)

	var result *bulkloader.Result
	if cmd.Preview {
		result, err = l.Preview(ctx, src)
	} else {
		result, err = l.Load(ctx, src)
	}

	runID := run.ID
	s.audit.LogImport(entities.ImportOriginCLI, cmd.Class, &runID, result, err)
	if err != nil {
		_ = runs.Fail(run.ID, err)
		return fmt.Errorf("import failed: %w", err)
	}
	if err := runs.Complete(run.ID, result); err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}

	if cmd.Verbose {
		for _, e := range result.Entries() {
			fmt.Fprintf(cmd.Out, "  %-8s %s #%d %s\n", e.Outcome, e.Class, e.ID, e.Message)
		}
	}
	fmt.Fprintln(cmd.Out, result.Message())
	if n := result.DeletedCount(); n > 0 {
		fmt.Fprintf(cmd.Out, "Deleted %d records before the import.\n", n)
	}
	return nil
}
