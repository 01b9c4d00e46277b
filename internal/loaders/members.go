package loaders

import (
	"context"
	"fmt"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/utils"
)

// GroupsColumn lists group codes a member is added to.
const GroupsColumn = "Groups"

// NewMemberLoader matches members on their normalized email and adds each
// imported member to the given groups plus those named in the Groups
// column. Unknown groups are created.
func NewMemberLoader(store bulkloader.Store, opts bulkloader.Options, groups ...string) *bulkloader.Loader {
	if opts.Class == "" {
		opts.Class = entities.ClassMember
	}
	opts.DuplicateChecks = []bulkloader.DuplicateCheck{
		bulkloader.ByCallback("Email", "normalizedEmail"),
	}

	l := bulkloader.New(store, opts)
	l.OnAfterRecord(func(ctx context.Context, store bulkloader.Store, e bulkloader.Entity, rec *bulkloader.Record) error {
		codes := append(append([]string{}, groups...), splitCodes(rec.String(GroupsColumn))...)
		return addToGroups(ctx, store, e, codes)
	})
	return l
}

func memberOf(e bulkloader.Entity) (*entities.Member, bool) {
	switch m := e.(type) {
	case *entities.Member:
		return m, true
	case *entities.VerifiedMember:
		return &m.Member, true
	default:
		return nil, false
	}
}

func addToGroups(ctx context.Context, store bulkloader.Store, e bulkloader.Entity, titles []string) error {
	m, ok := memberOf(e)
	if !ok || len(titles) == 0 {
		return nil
	}
	defer m.FlushCache()

	var related []bulkloader.Entity
	for _, title := range titles {
		code := utils.URLSegment(title)
		if code == "" {
			continue
		}
		if _, ok := m.CachedGroup(code); ok {
			continue
		}
		group, err := findOrCreateGroup(ctx, store, code, title)
		if err != nil {
			return err
		}
		m.CacheGroup(group)
		related = append(related, group)
	}
	return store.AppendRelation(ctx, e, "Groups", related...)
}

func findOrCreateGroup(ctx context.Context, store bulkloader.Store, code, title string) (*entities.Group, error) {
	found, err := store.FindOne(ctx, entities.ClassGroup, bulkloader.Filter{"Code": code})
	if err != nil {
		return nil, fmt.Errorf("failed to look up group %s: %w", code, err)
	}
	if g, ok := found.(*entities.Group); ok {
		return g, nil
	}
	g := &entities.Group{Code: code, Title: title}
	if err := store.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create group %s: %w", code, err)
	}
	return g, nil
}
