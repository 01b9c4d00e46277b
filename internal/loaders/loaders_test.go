package loaders

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/database"
	"github.com/mrlokans/sheetloader/internal/entities"
)

func setupDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"), database.WithLogLevel(logger.Silent))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func memberGroups(t *testing.T, db *database.Database, email string) []string {
	t.Helper()
	var m entities.Member
	require.NoError(t, db.DB.Preload("Groups").Where("email = ?", email).First(&m).Error)
	var codes []string
	for _, g := range m.Groups {
		codes = append(codes, g.Code)
	}
	return codes
}

func TestSplitCodes(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCodes(" a, b ,,a"))
	assert.Empty(t, splitCodes(""))
}

func TestFor(t *testing.T) {
	db := setupDB(t)
	s := db.Store()

	member := For(s, bulkloader.DefaultOptions(entities.ClassVerifiedMember))
	assert.Equal(t, []bulkloader.DuplicateCheck{bulkloader.ByCallback("Email", "normalizedEmail")}, member.Options().DuplicateChecks)

	group := For(s, bulkloader.DefaultOptions(entities.ClassGroup))
	assert.Equal(t, []bulkloader.DuplicateCheck{bulkloader.ByColumn("Code")}, group.Options().DuplicateChecks)

	company := For(s, bulkloader.DefaultOptions(entities.ClassCompany))
	assert.Equal(t, []bulkloader.DuplicateCheck{bulkloader.ByColumn(bulkloader.IDColumn)}, company.Options().DuplicateChecks)
}

func TestMemberLoader(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	s := db.Store()

	existing := &entities.Group{Code: "editors", Title: "Editors"}
	require.NoError(t, db.DB.Create(existing).Error)

	t.Run("Adds members to predefined and listed groups", func(t *testing.T) {
		l := NewMemberLoader(s, bulkloader.DefaultOptions(entities.ClassMember), "newsletter")
		result, err := l.ProcessData(ctx, []*bulkloader.Record{
			bulkloader.RecordFrom("Email", "ann@example.com", "FirstName", "Ann", GroupsColumn, "editors, Content Reviewers"),
			bulkloader.RecordFrom("Email", "bob@example.com", "FirstName", "Bob"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.CreatedCount())

		assert.ElementsMatch(t, []string{"newsletter", "editors", "content-reviewers"}, memberGroups(t, db, "ann@example.com"))
		assert.Equal(t, []string{"newsletter"}, memberGroups(t, db, "bob@example.com"))

		var reviewers entities.Group
		require.NoError(t, db.DB.Where("code = ?", "content-reviewers").First(&reviewers).Error)
		assert.Equal(t, "Content Reviewers", reviewers.Title)

		var groups int64
		require.NoError(t, db.DB.Model(&entities.Group{}).Count(&groups).Error)
		assert.Equal(t, int64(3), groups)
	})

	t.Run("Matches on the normalized email", func(t *testing.T) {
		l := NewMemberLoader(s, bulkloader.DefaultOptions(entities.ClassMember))
		result, err := l.ProcessData(ctx, []*bulkloader.Record{
			bulkloader.RecordFrom("Email", " ANN@example.com", "Surname", "Smith", GroupsColumn, "editors"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.UpdatedCount())
		assert.Len(t, memberGroups(t, db, "ann@example.com"), 3)
	})

	t.Run("Preview creates no groups", func(t *testing.T) {
		l := NewMemberLoader(s, bulkloader.DefaultOptions(entities.ClassMember), "preview-only")
		result, err := l.PreviewData(ctx, []*bulkloader.Record{
			bulkloader.RecordFrom("Email", "carl@example.com", GroupsColumn, "ghosts"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.CreatedCount())

		var groups int64
		require.NoError(t, db.DB.Model(&entities.Group{}).Where("code IN ?", []string{"ghosts", "preview-only"}).Count(&groups).Error)
		assert.Zero(t, groups)
	})

	t.Run("Short passwords are rejected", func(t *testing.T) {
		l := NewMemberLoader(s, bulkloader.DefaultOptions(entities.ClassMember))
		_, err := l.ProcessData(ctx, []*bulkloader.Record{
			bulkloader.RecordFrom("Email", "dan@example.com", "Password", "short"),
		})
		require.Error(t, err)
		assert.Equal(t, bulkloader.KindValidation, bulkloader.KindOf(err))
	})
}

func TestGroupLoader(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	s := db.Store()

	records := func(perms string) []*bulkloader.Record {
		return []*bulkloader.Record{
			bulkloader.RecordFrom("ID", "99", "Code", "editors", "Title", "Editors", PermissionCodesColumn, perms),
			bulkloader.RecordFrom("Code", "reviewers", "Title", "Reviewers", ParentCodeColumn, "editors"),
			bulkloader.RecordFrom("Code", "orphans", ParentCodeColumn, "missing"),
		}
	}

	result, err := NewGroupLoader(s, bulkloader.DefaultOptions(entities.ClassGroup)).ProcessData(ctx, records("CMS_ACCESS, EDIT_CONTENT"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.CreatedCount())

	var editors, reviewers, orphans entities.Group
	require.NoError(t, db.DB.Preload("Permissions").Where("code = ?", "editors").First(&editors).Error)
	require.NoError(t, db.DB.Where("code = ?", "reviewers").First(&reviewers).Error)
	require.NoError(t, db.DB.Where("code = ?", "orphans").First(&orphans).Error)

	assert.NotEqual(t, uint(99), editors.ID, "file IDs are ignored")
	assert.Equal(t, editors.ID, reviewers.ParentID)
	assert.Zero(t, orphans.ParentID)
	assert.Len(t, editors.Permissions, 2)

	t.Run("Permissions are only added", func(t *testing.T) {
		result, err := NewGroupLoader(s, bulkloader.DefaultOptions(entities.ClassGroup)).ProcessData(ctx, records("EDIT_CONTENT, VIEW_DRAFTS"))
		require.NoError(t, err)
		assert.Equal(t, 3, result.UpdatedCount())

		var codes []string
		require.NoError(t, db.DB.Model(&entities.Permission{}).Where("group_id = ?", editors.ID).Order("code").Pluck("code", &codes).Error)
		assert.Equal(t, []string{"CMS_ACCESS", "EDIT_CONTENT", "VIEW_DRAFTS"}, codes)
	})
}
