package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// exportCSV writes the table as CSV with a header row.
func exportCSV(data TableData, title string) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"customer_number", "customer", "project", "folder", "file", "uploaded_by", "uploaded_at", data.StatusHeading}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	for _, r := range data.Rows {
		record := []string{
			r.CustomerNumber,
			r.CustomerName,
			r.ProjectName,
			r.FolderName,
			r.FileName,
			r.UploadedBy,
			r.UploadedAt.Format(time.RFC3339),
			r.StatusLabel(),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(title) + ".csv",
		MimeType: "text/csv",
	}, nil
}
