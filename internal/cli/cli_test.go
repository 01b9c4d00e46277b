package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/sheetloader/internal/auth"
	"github.com/mrlokans/sheetloader/internal/database"
	"github.com/mrlokans/sheetloader/internal/entities"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func importCompanies(t *testing.T, dbPath string, extra ...string) *bytes.Buffer {
	t.Helper()
	csvPath := writeFile(t, "companies.csv", "Name;Country\nAcme;DE\nGlobex;US\n")

	var out bytes.Buffer
	cmd := NewImportCommand()
	cmd.Out = &out
	args := append([]string{"-class", "Company", "-file", csvPath, "-db", dbPath}, extra...)
	require.NoError(t, cmd.ParseFlags(args))
	require.NoError(t, cmd.Run())
	return &out
}

func TestImportCommand_ParseFlags(t *testing.T) {
	t.Run("Requires a class", func(t *testing.T) {
		err := NewImportCommand().ParseFlags([]string{"-file", "x.csv"})
		assert.EqualError(t, err, "required flag -class not provided")
	})

	t.Run("Requires a file", func(t *testing.T) {
		err := NewImportCommand().ParseFlags([]string{"-class", "Member"})
		assert.EqualError(t, err, "required flag -file not provided")
	})

	t.Run("Maps flags to loader options", func(t *testing.T) {
		cmd := NewImportCommand()
		require.NoError(t, cmd.ParseFlags([]string{
			"-class", "Member", "-file", "m.csv", "-delimiter", ";",
			"-no-header", "-transaction", "-clear", "-relations", "-check-permissions",
		}))

		opts := cmd.options()
		assert.Equal(t, "Member", opts.Class)
		assert.Equal(t, ";", opts.Delimiter)
		assert.False(t, opts.HasHeaderRow)
		assert.True(t, opts.UseTransaction)
		assert.True(t, opts.DeleteExistingRecords)
		assert.True(t, opts.MakeRelations)
		assert.True(t, opts.CheckPermissions)
	})
}

func TestImportCommand_Run(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	t.Run("Preview writes nothing", func(t *testing.T) {
		out := importCompanies(t, dbPath, "-preview")
		assert.Contains(t, out.String(), "PREVIEW MODE")

		db, err := database.NewDatabase(dbPath, database.WithLogLevel(logger.Silent))
		require.NoError(t, err)
		defer db.Close()

		var count int64
		require.NoError(t, db.DB.Model(&entities.Company{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("Load records the run", func(t *testing.T) {
		out := importCompanies(t, dbPath)
		assert.Contains(t, out.String(), "Imported 2 records.")

		db, err := database.NewDatabase(dbPath, database.WithLogLevel(logger.Silent))
		require.NoError(t, err)
		defer db.Close()

		var runs []entities.ImportRun
		require.NoError(t, db.DB.Order("id").Find(&runs).Error)
		require.Len(t, runs, 2)
		assert.Equal(t, entities.ImportOriginCLI, runs[1].Origin)
		assert.Equal(t, entities.ImportStatusCompleted, runs[1].Status)
		assert.Equal(t, 2, runs[1].Created)
		assert.True(t, runs[0].Preview)

		var events int64
		require.NoError(t, db.DB.Model(&entities.AuditEvent{}).Count(&events).Error)
		assert.Equal(t, int64(2), events)
	})

	t.Run("Unknown classes fail the run", func(t *testing.T) {
		csvPath := writeFile(t, "x.csv", "Name\nx\n")
		cmd := NewImportCommand()
		cmd.Out = &bytes.Buffer{}
		require.NoError(t, cmd.ParseFlags([]string{"-class", "Unknown", "-file", csvPath, "-db", dbPath}))
		assert.ErrorContains(t, cmd.Run(), "import failed")
	})
}

func TestExportCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	importCompanies(t, dbPath)

	t.Run("Rejects unwritable formats", func(t *testing.T) {
		cmd := NewExportCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-class", "Company", "-format", "ods", "-db", dbPath}))
		assert.Error(t, cmd.Run())
	})

	t.Run("Rejects a non positive limit", func(t *testing.T) {
		err := NewExportCommand().ParseFlags([]string{"-class", "Company", "-limit", "0"})
		assert.Error(t, err)
	})

	t.Run("Writes CSV to stdout", func(t *testing.T) {
		var out bytes.Buffer
		cmd := NewExportCommand()
		cmd.Out = &out
		require.NoError(t, cmd.ParseFlags([]string{
			"-class", "Company", "-format", "csv", "-out", "-",
			"-columns", "Name,Country", "-sort", "-Name", "-db", dbPath,
		}))
		require.NoError(t, cmd.Run())
		assert.Equal(t, "Name,Country\nGlobex,US\nAcme,DE\n", out.String())
	})

	t.Run("Names the file after the class and time", func(t *testing.T) {
		dir := t.TempDir()
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		defer func() { _ = os.Chdir(wd) }()

		var out bytes.Buffer
		cmd := NewExportCommand()
		cmd.Out = &out
		cmd.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
		require.NoError(t, cmd.ParseFlags([]string{"-class", "Company", "-format", "csv", "-limit", "1", "-db", dbPath}))
		require.NoError(t, cmd.Run())

		assert.Contains(t, out.String(), "Exported 1 Company records to export-Company-20240301_0930.csv")
		data, err := os.ReadFile(filepath.Join(dir, "export-Company-20240301_0930.csv"))
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
	})
}

func TestSampleCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	t.Run("Requires a class", func(t *testing.T) {
		assert.Error(t, NewSampleCommand().ParseFlags(nil))
	})

	t.Run("Writes the class sample rows", func(t *testing.T) {
		var out bytes.Buffer
		cmd := NewSampleCommand()
		cmd.Out = &out
		require.NoError(t, cmd.ParseFlags([]string{"-class", "Group", "-format", "csv", "-out", "-", "-db", dbPath}))
		require.NoError(t, cmd.Run())
		assert.True(t, strings.HasPrefix(out.String(), "Code,Title,ParentCode,PermissionCodes\n"))
		assert.Contains(t, out.String(), "reviewers,Reviewers,editors,VIEW_DRAFTS")
	})

	t.Run("Removes the file when the class is unknown", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sample.csv")
		cmd := NewSampleCommand()
		require.NoError(t, cmd.ParseFlags([]string{"-class", "Unknown", "-format", "csv", "-out", path, "-db", dbPath}))
		assert.Error(t, cmd.Run())
		assert.NoFileExists(t, path)
	})
}

func TestTokenCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewTokenCommand()
	cmd.Out = &out
	require.NoError(t, cmd.ParseFlags(nil))
	require.NoError(t, cmd.Run())

	m := regexp.MustCompile(`Token: ([0-9a-f]{64})\nHash:  ([0-9a-f]{64})`).FindStringSubmatch(out.String())
	require.Len(t, m, 3)
	assert.True(t, auth.TokenMatches(m[1], m[2]))
}
