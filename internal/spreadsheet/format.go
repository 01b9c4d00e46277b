package spreadsheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies the reader/writer family for a file extension.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatXLS      Format = "xls"
	FormatODS      Format = "ods"
	FormatSLK      Format = "slk"
	FormatXML      Format = "xml"
	FormatGnumeric Format = "gnumeric"
	FormatHTML     Format = "html"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrUnreadable        = errors.New("cannot read file")
)

// TempFileFormat is used for uploads stored with a ".tmp" suffix.
var TempFileFormat = FormatXLSX

var extensionFormats = map[string]Format{
	"xlsx":     FormatXLSX,
	"xlsm":     FormatXLSX, // macros are discarded
	"xltx":     FormatXLSX,
	"xltm":     FormatXLSX,
	"xls":      FormatXLS,
	"xlt":      FormatXLS,
	"ods":      FormatODS,
	"ots":      FormatODS,
	"slk":      FormatSLK,
	"xml":      FormatXML,
	"gnumeric": FormatGnumeric,
	"htm":      FormatHTML,
	"html":     FormatHTML,
	"csv":      FormatCSV,
}

// FormatForExtension resolves a file extension (with or without the dot)
// to its Format. Unknown extensions return ErrUnsupportedFormat.
func FormatForExtension(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "tmp" {
		return TempFileFormat, nil
	}
	f, ok := extensionFormats[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Extension returns the lowercased extension of a path without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Readable reports whether rows can be read from files of this format.
func (f Format) Readable() bool {
	return f == FormatCSV || f == FormatXLSX
}

// Writable reports whether exports can be produced in this format.
// XLS exports are written as OOXML workbooks.
func (f Format) Writable() bool {
	return f == FormatCSV || f == FormatXLSX || f == FormatXLS
}

// ValidExtensions lists the extensions accepted for import.
func ValidExtensions() []string {
	return []string{"csv", "xlsx", "xlsm", "xltx", "xltm"}
}

// ValidExtensionsText is a short helper string for upload forms.
func ValidExtensionsText() string {
	return "Allowed extensions: " + strings.Join(ValidExtensions(), ", ")
}

// ContentType returns the HTTP content type for an export file extension.
func ContentType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return "text/csv"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/vnd.ms-excel"
	}
}
