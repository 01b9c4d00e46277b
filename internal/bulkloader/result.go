package bulkloader

import (
	"fmt"
	"strings"
)

// Outcome is what happened to one row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// ResultEntry records one processed row.
type ResultEntry struct {
	ID      uint    `json:"id"`
	Class   string  `json:"class"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// Result accumulates the outcome of a load. It is owned by the caller once
// Load returns.
type Result struct {
	entries []ResultEntry
	deleted int
	preview bool
}

func (r *Result) addCreated(id uint, class, message string) {
	r.entries = append(r.entries, ResultEntry{ID: id, Class: class, Outcome: OutcomeCreated, Message: message})
}

func (r *Result) addUpdated(id uint, class, message string) {
	r.entries = append(r.entries, ResultEntry{ID: id, Class: class, Outcome: OutcomeUpdated, Message: message})
}

// Entries returns all processed rows in order.
func (r *Result) Entries() []ResultEntry {
	out := make([]ResultEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Created returns the entries for new entities.
func (r *Result) Created() []ResultEntry {
	return r.filter(OutcomeCreated)
}

// Updated returns the entries for existing entities.
func (r *Result) Updated() []ResultEntry {
	return r.filter(OutcomeUpdated)
}

func (r *Result) filter(o Outcome) []ResultEntry {
	var out []ResultEntry
	for _, e := range r.entries {
		if e.Outcome == o {
			out = append(out, e)
		}
	}
	return out
}

func (r *Result) CreatedCount() int { return len(r.Created()) }
func (r *Result) UpdatedCount() int { return len(r.Updated()) }
func (r *Result) DeletedCount() int { return r.deleted }

// Preview reports whether the result comes from a dry run.
func (r *Result) Preview() bool { return r.preview }

// Message summarises the counts for display after an import.
func (r *Result) Message() string {
	var parts []string
	if n := r.CreatedCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("Imported %d records.", n))
	}
	if n := r.UpdatedCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("Updated %d records.", n))
	}
	if n := r.DeletedCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("Deleted %d records.", n))
	}
	if r.CreatedCount() == 0 && r.UpdatedCount() == 0 {
		parts = append(parts, "Nothing to import")
	}
	return strings.Join(parts, " ")
}

// Summary is the serialisable form of a Result.
type Summary struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Deleted int           `json:"deleted"`
	Preview bool          `json:"preview"`
	Message string        `json:"message"`
	Entries []ResultEntry `json:"entries,omitempty"`
}

// Summary returns counts and entries for JSON responses.
func (r *Result) Summary() Summary {
	return Summary{
		Created: r.CreatedCount(),
		Updated: r.UpdatedCount(),
		Deleted: r.DeletedCount(),
		Preview: r.preview,
		Message: r.Message(),
		Entries: r.Entries(),
	}
}
