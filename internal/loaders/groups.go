package loaders

import (
	"context"
	"fmt"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/entities"
)

const (
	// ParentCodeColumn names the code of the parent group.
	ParentCodeColumn = "ParentCode"
	// PermissionCodesColumn lists permission codes granted to the group.
	PermissionCodesColumn = "PermissionCodes"
)

// NewGroupLoader matches groups on Code. IDs in the file are ignored,
// parents are resolved by code and permission codes are only ever added.
func NewGroupLoader(store bulkloader.Store, opts bulkloader.Options) *bulkloader.Loader {
	opts.Class = entities.ClassGroup
	opts.DuplicateChecks = []bulkloader.DuplicateCheck{bulkloader.ByColumn("Code")}

	l := bulkloader.New(store, opts)
	l.OnBeforeRecord(func(_ context.Context, rec *bulkloader.Record) error {
		rec.Delete(bulkloader.IDColumn)
		return nil
	})
	l.OnAfterRecord(func(ctx context.Context, store bulkloader.Store, e bulkloader.Entity, rec *bulkloader.Record) error {
		g, ok := e.(*entities.Group)
		if !ok {
			return nil
		}
		if err := setParent(ctx, store, g, rec.String(ParentCodeColumn)); err != nil {
			return err
		}
		return addPermissions(ctx, store, g, splitCodes(rec.String(PermissionCodesColumn)))
	})
	return l
}

// setParent links g to the group with code. Unknown codes are ignored.
func setParent(ctx context.Context, store bulkloader.Store, g *entities.Group, code string) error {
	if code == "" {
		return nil
	}
	found, err := store.FindOne(ctx, entities.ClassGroup, bulkloader.Filter{"Code": code})
	if err != nil {
		return err
	}
	parent, ok := found.(*entities.Group)
	if !ok || parent.ID == g.ID || parent.ID == g.ParentID {
		return nil
	}
	g.ParentID = parent.ID
	return store.Update(ctx, g)
}

func addPermissions(ctx context.Context, store bulkloader.Store, g *entities.Group, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	existing := make(map[string]bool)
	for e, err := range store.List(ctx, entities.ClassPermission, bulkloader.ListQuery{
		Filters: bulkloader.Filter{"GroupID": g.ID},
	}) {
		if err != nil {
			return err
		}
		if p, ok := e.(*entities.Permission); ok {
			existing[p.Code] = true
		}
	}

	for _, code := range codes {
		if existing[code] {
			continue
		}
		if err := store.Create(ctx, &entities.Permission{Code: code, GroupID: g.ID}); err != nil {
			return fmt.Errorf("failed to grant %s to group %s: %w", code, g.Code, err)
		}
	}
	return nil
}
