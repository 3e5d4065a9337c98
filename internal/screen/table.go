package screen

import "foreman/api/internal/aggregate"

// Table keeps the view state of one open screen: current filter and current
// page. Changing the filter snaps back to page one so a shrunken result set
// is never viewed through a stale page number.
type Table struct {
	def      Definition
	pageSize int
	project  string
	text     string
	page     int
}

func NewTable(def Definition, pageSize int) *Table {
	return &Table{def: def, pageSize: pageSize, page: 1}
}

// SetFilter updates the project and text filters. Any change resets the page
// to one.
func (t *Table) SetFilter(projectID, text string) {
	if t.project == projectID && t.text == text {
		return
	}
	t.project = projectID
	t.text = text
	t.page = 1
}

func (t *Table) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	t.page = page
}

// View applies the table's state to a snapshot of aggregated rows.
func (t *Table) View(rows []aggregate.Row) Page {
	selected := t.def.Select(rows)
	filtered := Filter(selected, Query{ProjectID: t.project, Text: t.text})
	return Paginate(filtered, t.page, t.pageSize)
}
