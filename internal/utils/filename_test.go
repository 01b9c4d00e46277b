package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "keeps plain names", input: "Members 2024", expected: "Members 2024"},
		{name: "drops reserved characters", input: `mem<>:"/\|?*bers`, expected: "members"},
		{name: "folds whitespace", input: "export\nof\t\tgroups\r", expected: "export of groups"},
		{name: "drops leading dots", input: "../members", expected: "members"},
		{name: "keeps inner dots", input: "members.v2", expected: "members.v2"},
		{name: "drops control characters", input: "mem\x00bers\x7f", expected: "members"},
		{name: "trims surrounding spaces", input: "  groups  ", expected: "groups"},
		{name: "empty input", input: "", expected: "export"},
		{name: "nothing usable", input: "..<>?", expected: "export"},
		{name: "unicode survives", input: "Członkowie zespołu", expected: "Członkowie zespołu"},
		{name: "long ascii is cut", input: strings.Repeat("m", 250), expected: strings.Repeat("m", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilenameKeepsRunesWhole(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("ł", 150))

	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 200)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
}

func TestURLSegment(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Content Editors", expected: "content-editors"},
		{input: "  admins  ", expected: "admins"},
		{input: "R&D / Lab", expected: "r-d-lab"},
		{input: "editors", expected: "editors"},
		{input: "Team 42", expected: "team-42"},
		{input: "!!!", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, URLSegment(tt.input))
		})
	}
}
