// Package screen defines the dashboard screens as configurations over the
// shared aggregation: which folders feed the screen, which status kind
// drives it, and how rows are sorted, filtered, and paginated.
package screen

import (
	"strings"

	"foreman/api/internal/aggregate"
	"foreman/api/internal/store"
)

// The fixed folder taxonomy files are organized under. Customers upload into
// the Customer Uploads folders from the portal; staff publish into the rest.
var (
	FolderCustomerDocuments = aggregate.Folder{Name: "Customer Documents", Segments: []string{"Customer Uploads", "Documents"}}
	FolderCustomerPhotos    = aggregate.Folder{Name: "Customer Photos", Segments: []string{"Customer Uploads", "Photos"}}
	FolderInspectionReports = aggregate.Folder{Name: "Inspection Reports", Segments: []string{"Reports", "Inspection"}}
	FolderAnnualReports     = aggregate.Folder{Name: "Annual Reports", Segments: []string{"Reports", "Annual"}}
	FolderContracts         = aggregate.Folder{Name: "Contracts", Segments: []string{"Contracts"}}
	FolderChecklists        = aggregate.Folder{Name: "Checklists", Segments: []string{"Checklists"}}
)

// Definition configures one screen.
type Definition struct {
	Name        string
	Title       string
	Folders     []aggregate.Folder
	StatusKind  string
	UndoneFirst bool
}

var (
	// Files lists customer uploads with staff read receipts, unread first.
	Files = Definition{
		Name:        "files",
		Title:       "Customer Uploads",
		Folders:     []aggregate.Folder{FolderCustomerDocuments, FolderCustomerPhotos},
		StatusKind:  store.StatusRead,
		UndoneFirst: true,
	}
	// Tracking shows whether customers have opened published documents.
	Tracking = Definition{
		Name:       "tracking",
		Title:      "Read Tracking",
		Folders:    []aggregate.Folder{FolderInspectionReports, FolderAnnualReports, FolderContracts, FolderChecklists},
		StatusKind: store.StatusRead,
	}
	// Audit is the approval history over report folders.
	Audit = Definition{
		Name:       "audit",
		Title:      "Approval Audit",
		Folders:    []aggregate.Folder{FolderInspectionReports, FolderAnnualReports},
		StatusKind: store.StatusApproval,
	}
	// Approvals surfaces reports still waiting for approval.
	Approvals = Definition{
		Name:        "approvals",
		Title:       "Pending Approvals",
		Folders:     []aggregate.Folder{FolderInspectionReports, FolderAnnualReports},
		StatusKind:  store.StatusApproval,
		UndoneFirst: true,
	}
)

var All = []Definition{Files, Tracking, Audit, Approvals}

func ByName(name string) (Definition, bool) {
	for _, def := range All {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// AllFolders is the deduplicated union of every screen's folder set; one
// aggregation pass over it feeds all screens.
func AllFolders() []aggregate.Folder {
	var folders []aggregate.Folder
	seen := make(map[string]bool)
	for _, def := range All {
		for _, folder := range def.Folders {
			if key := folder.Key(); !seen[key] {
				seen[key] = true
				folders = append(folders, folder)
			}
		}
	}
	return folders
}

// Select copies the rows belonging to this screen's folders out of a shared
// snapshot and sorts them per the screen's order. The input is never
// mutated.
func (d Definition) Select(rows []aggregate.Row) []aggregate.Row {
	member := make(map[string]bool, len(d.Folders))
	for _, folder := range d.Folders {
		member[folder.Path()] = true
	}
	selected := make([]aggregate.Row, 0, len(rows))
	for _, row := range rows {
		if member[row.FolderPath] {
			selected = append(selected, row)
		}
	}
	if d.UndoneFirst {
		aggregate.UndoneFirst(selected, d.StatusKind)
	} else {
		aggregate.ByRecency(selected)
	}
	return selected
}

// Query carries the user-adjustable view state of a screen.
type Query struct {
	ProjectID string
	Text      string
	Page      int
	PageSize  int
}

// Filter applies the project filter and the free-text filter intersectively.
// Text matches case-insensitively against customer number, customer email,
// project name, and file name.
func Filter(rows []aggregate.Row, q Query) []aggregate.Row {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if q.ProjectID == "" && needle == "" {
		return rows
	}
	filtered := make([]aggregate.Row, 0, len(rows))
	for _, row := range rows {
		if q.ProjectID != "" && row.ProjectID != q.ProjectID {
			continue
		}
		if needle != "" && !matches(row, needle) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

func matches(row aggregate.Row, needle string) bool {
	for _, field := range []string{row.CustomerNumber, row.CustomerEmail, row.ProjectName, row.FileName} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Page is one window of filtered rows plus the numbers a pager needs.
type Page struct {
	Rows       []aggregate.Row `json:"rows"`
	Number     int             `json:"page"`
	Size       int             `json:"pageSize"`
	TotalRows  int             `json:"totalRows"`
	TotalPages int             `json:"totalPages"`
}

// Paginate windows rows into the requested page. The page number clamps into
// [1, totalPages] and the returned slice never exceeds size rows. A size of
// zero or less returns everything as a single page.
func Paginate(rows []aggregate.Row, page, size int) Page {
	total := len(rows)
	if size <= 0 {
		return Page{Rows: rows, Number: 1, Size: total, TotalRows: total, TotalPages: 1}
	}
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page{
		Rows:       rows[start:end],
		Number:     page,
		Size:       size,
		TotalRows:  total,
		TotalPages: totalPages,
	}
}
