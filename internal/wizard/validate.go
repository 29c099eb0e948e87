package wizard

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// MaxFileSize is the largest source file accepted, 5 MiB.
const MaxFileSize int64 = 5 * 1024 * 1024

var (
	TemplateExtensions = []string{".doc", ".docx"}
	DataFileExtensions = []string{".xls", ".xlsx", ".xlsm"}
	OutputFormats      = []string{"docx", "pdf", "txt"}
)

// ValidateFile checks size first, then extension, case-insensitively.
func ValidateFile(name string, size int64, allowed []string) error {
	if size > MaxFileSize {
		return &UserError{Message: "File size cannot exceed 5MB"}
	}
	if slices.Contains(allowed, strings.ToLower(filepath.Ext(name))) {
		return nil
	}
	return &UserError{Message: fmt.Sprintf("Invalid file type. Allowed extensions: %s", strings.Join(allowed, ", "))}
}

// ValidRange reports whether a range selection may continue: either all rows,
// or a start row >= 1 and an end row >= start row.
func ValidRange(processAll bool, startRow, endRow string) bool {
	if processAll {
		return true
	}
	start, ok := parseRow(startRow)
	if !ok {
		return false
	}
	end, ok := parseRow(endRow)
	if !ok {
		return false
	}
	return start >= 1 && end >= start
}

// RangeError is the inline message for an invalid explicit range, or "" when
// nothing useful can be said yet.
func RangeError(processAll bool, startRow, endRow string) string {
	if processAll || ValidRange(processAll, startRow, endRow) {
		return ""
	}
	start, okStart := parseRow(startRow)
	end, okEnd := parseRow(endRow)
	switch {
	case strings.TrimSpace(startRow) == "" || strings.TrimSpace(endRow) == "":
		return "Enter both a start row and an end row"
	case !okStart || !okEnd:
		return "Rows must be whole numbers"
	case start < 1:
		return "Start row must be 1 or greater"
	case end < start:
		return MsgInvalidRange
	}
	return ""
}

func parseRow(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func validOutputFormat(format string) bool {
	return slices.Contains(OutputFormats, format)
}
