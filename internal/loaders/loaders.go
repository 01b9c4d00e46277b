// Package loaders configures bulk loaders for the application's classes.
package loaders

import (
	"strings"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/entities"
)

// For returns the loader for opts.Class: members and groups get their
// dedicated loaders, every other class the generic one.
func For(store bulkloader.Store, opts bulkloader.Options) *bulkloader.Loader {
	switch {
	case store.IsSubclass(opts.Class, entities.ClassMember):
		return NewMemberLoader(store, opts)
	case opts.Class == entities.ClassGroup:
		return NewGroupLoader(store, opts)
	default:
		return bulkloader.New(store, opts)
	}
}

// splitCodes parses a comma separated cell, dropping blanks and repeats.
func splitCodes(cell string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(cell, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
