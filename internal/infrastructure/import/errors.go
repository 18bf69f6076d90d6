package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Common import errors
var (
	// ErrEmptyFile is returned when the upload has no content
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidEncoding is returned when CSV content is not UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when tabular text has no header row
	ErrMissingHeader = errors.New("file missing header row")

	// ErrFileTooLarge is returned when the file exceeds maximum size
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

	// ErrUnreadableWorkbook is returned when a spreadsheet cannot be opened
	ErrUnreadableWorkbook = errors.New("spreadsheet could not be read")

	// ErrNoSheets is returned when a workbook contains no worksheet
	ErrNoSheets = errors.New("spreadsheet has no sheets")
)

// RowError reports a data row that could not be used
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ErrorCollection collects row errors up to a limit
type ErrorCollection struct {
	errors    []RowError
	maxErrors int
	total     int
}

// NewErrorCollection creates a collection keeping at most maxErrors entries;
// zero or less keeps all of them.
func NewErrorCollection(maxErrors int) *ErrorCollection {
	return &ErrorCollection{maxErrors: maxErrors}
}

// Add records an error
func (ec *ErrorCollection) Add(err RowError) {
	ec.total++
	if ec.maxErrors > 0 && len(ec.errors) >= ec.maxErrors {
		return
	}
	ec.errors = append(ec.errors, err)
}

// Errors returns the kept errors
func (ec *ErrorCollection) Errors() []RowError {
	return ec.errors
}

// TotalCount returns how many errors were added, kept or not
func (ec *ErrorCollection) TotalCount() int {
	return ec.total
}

// HasErrors reports whether any error was added
func (ec *ErrorCollection) HasErrors() bool {
	return ec.total > 0
}

// IsTruncated reports whether errors were dropped
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.total > len(ec.errors)
}

// String joins the kept errors
func (ec *ErrorCollection) String() string {
	if len(ec.errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ec.errors)+1)
	for _, e := range ec.errors {
		parts = append(parts, e.Error())
	}
	if ec.IsTruncated() {
		parts = append(parts, fmt.Sprintf("... and %d more", ec.total-len(ec.errors)))
	}
	return strings.Join(parts, "; ")
}
