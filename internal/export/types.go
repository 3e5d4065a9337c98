// Package export renders dashboard tables as downloadable PDF and CSV files.
package export

import (
	"errors"
	"fmt"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// ParseFormat validates a format string from a request.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// Request contains parameters for an export operation
type Request struct {
	Title         string
	StatusHeading string // column label, e.g. "Read" or "Approved"
	Format        Format
	Rows          []Row
}

// Row is one table line, already decorated by the caller.
type Row struct {
	CustomerNumber string
	CustomerName   string
	ProjectName    string
	FolderName     string
	FileName       string
	UploadedBy     string
	UploadedAt     time.Time
	StatusDone     bool
	StatusActor    string
	StatusAt       time.Time
}

// StatusLabel renders the status cell, e.g. "Anna Larsen, Mar 5, 2026".
func (r Row) StatusLabel() string {
	if !r.StatusDone {
		return "Pending"
	}
	if r.StatusAt.IsZero() {
		return r.StatusActor
	}
	if r.StatusActor == "" {
		return r.StatusAt.Format("Jan 2, 2006")
	}
	return r.StatusActor + ", " + r.StatusAt.Format("Jan 2, 2006")
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
