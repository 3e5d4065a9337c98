package export

import (
	"fmt"
	"time"
)

// Service turns decorated screen rows into downloadable files.
type Service struct {
	now func() time.Time
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(req Request) (*Result, error) {
	data := TableData{
		Title:         req.Title,
		StatusHeading: req.StatusHeading,
		GeneratedAt:   s.now(),
		Rows:          req.Rows,
	}
	if data.StatusHeading == "" {
		data.StatusHeading = "Status"
	}

	switch req.Format {
	case FormatCSV:
		return exportCSV(data, req.Title)
	case FormatPDF:
		html, err := RenderTableHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, req.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
