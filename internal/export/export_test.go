package export

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func sampleRows() []Row {
	return []Row{
		{
			CustomerNumber: "K-100",
			CustomerName:   "Ola Hansen",
			ProjectName:    "Seaside Cabin",
			FolderName:     "Inspection",
			FileName:       "roof-check.pdf",
			UploadedBy:     "Ola Hansen",
			UploadedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			StatusDone:     true,
			StatusActor:    "Anna Larsen",
			StatusAt:       time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		{
			CustomerNumber: "K-200",
			CustomerName:   "Kari Berg",
			ProjectName:    "Harbor House",
			FolderName:     "Annual",
			FileName:       "2024.pdf",
			UploadedBy:     "system",
			UploadedAt:     time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
		},
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		expected string
	}{
		{
			name:     "pending",
			row:      Row{},
			expected: "Pending",
		},
		{
			name:     "done with actor and time",
			row:      Row{StatusDone: true, StatusActor: "Anna Larsen", StatusAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)},
			expected: "Anna Larsen, Mar 5, 2026",
		},
		{
			name:     "done without time",
			row:      Row{StatusDone: true, StatusActor: "Anna Larsen"},
			expected: "Anna Larsen",
		},
		{
			name:     "done without actor",
			row:      Row{StatusDone: true, StatusAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)},
			expected: "Mar 5, 2026",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.StatusLabel(); got != tt.expected {
				t.Errorf("StatusLabel() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("pdf"); err != nil || f != FormatPDF {
		t.Errorf("ParseFormat(pdf) = %v, %v", f, err)
	}
	if f, err := ParseFormat("csv"); err != nil || f != FormatCSV {
		t.Errorf("ParseFormat(csv) = %v, %v", f, err)
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Error("ParseFormat(docx) should fail")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Tracking v1.2", "Tracking-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "export"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderTableHTML(t *testing.T) {
	data := TableData{
		Title:         "Tracking",
		StatusHeading: "Read",
		GeneratedAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Rows:          sampleRows(),
	}

	html, err := RenderTableHTML(data)
	if err != nil {
		t.Fatalf("RenderTableHTML() error = %v", err)
	}

	if !strings.Contains(html, "Tracking") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "<th>Read</th>") {
		t.Error("HTML missing status heading")
	}
	if !strings.Contains(html, "roof-check.pdf") {
		t.Error("HTML missing file name")
	}
	if !strings.Contains(html, "Anna Larsen, Mar 5, 2026") {
		t.Error("HTML missing status label")
	}
	if !strings.Contains(html, `<td class="pending">Pending</td>`) {
		t.Error("HTML missing pending cell")
	}
	if !strings.Contains(html, "2 files") {
		t.Error("HTML missing row count")
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewService()

	result, err := svc.Export(Request{
		Title:         "Audit",
		StatusHeading: "Approved",
		Format:        FormatCSV,
		Rows:          sampleRows(),
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Audit.csv" {
		t.Errorf("filename = %q, want Audit.csv", result.Filename)
	}
	if result.MimeType != "text/csv" {
		t.Errorf("mime type = %q, want text/csv", result.MimeType)
	}

	records, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[0][7] != "Approved" {
		t.Errorf("status header = %q, want Approved", records[0][7])
	}
	if records[1][4] != "roof-check.pdf" {
		t.Errorf("file cell = %q, want roof-check.pdf", records[1][4])
	}
	if records[2][7] != "Pending" {
		t.Errorf("status cell = %q, want Pending", records[2][7])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	svc := NewService()

	if _, err := svc.Export(Request{Title: "Files", Format: Format("xlsx")}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
