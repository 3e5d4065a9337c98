package screen

import (
	"fmt"
	"testing"
	"time"

	"foreman/api/internal/aggregate"
	"foreman/api/internal/store"
)

func row(project, file string) aggregate.Row {
	return aggregate.Row{
		Key:            store.FileKey(project, FolderContracts.Key(), file),
		ProjectID:      project,
		ProjectName:    "Project " + project,
		CustomerNumber: "K-" + project,
		CustomerEmail:  project + "@example.com",
		FolderPath:     FolderContracts.Path(),
		FileName:       file,
		UploadedAt:     time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFilterCaseInsensitive(t *testing.T) {
	rows := []aggregate.Row{row("p1", "Contract-Final.PDF"), row("p2", "notes.txt")}

	got := Filter(rows, Query{Text: "contract-final"})
	if len(got) != 1 || got[0].FileName != "Contract-Final.PDF" {
		t.Fatalf("expected the contract row, got %+v", got)
	}
}

func TestFilterMatchesEachField(t *testing.T) {
	r := row("p1", "drawing.pdf")
	r.CustomerNumber = "K-778"
	r.CustomerEmail = "berit@example.com"
	r.ProjectName = "Seaside Cabin"
	rows := []aggregate.Row{r, row("p2", "other.pdf")}

	for _, text := range []string{"k-778", "BERIT@", "seaside", "drawing"} {
		got := Filter(rows, Query{Text: text})
		if len(got) != 1 || got[0].ProjectID != "p1" {
			t.Errorf("text %q: expected only the p1 row, got %d rows", text, len(got))
		}
	}
}

func TestFilterIntersective(t *testing.T) {
	rows := []aggregate.Row{row("p1", "match.pdf"), row("p2", "match.pdf")}

	got := Filter(rows, Query{ProjectID: "p1", Text: "match"})
	if len(got) != 1 || got[0].ProjectID != "p1" {
		t.Fatalf("project and text filters must both apply, got %+v", got)
	}
	if got := Filter(rows, Query{ProjectID: "p1", Text: "no-such-file"}); len(got) != 0 {
		t.Fatalf("expected no rows when text misses, got %d", len(got))
	}
}

func TestPaginateNeverExceedsPageSize(t *testing.T) {
	var rows []aggregate.Row
	for i := 0; i < 23; i++ {
		rows = append(rows, row("p1", fmt.Sprintf("file-%02d.pdf", i)))
	}
	for page := 1; page <= 5; page++ {
		p := Paginate(rows, page, 10)
		if len(p.Rows) > 10 {
			t.Fatalf("page %d returned %d rows, page size is 10", page, len(p.Rows))
		}
	}
	last := Paginate(rows, 3, 10)
	if len(last.Rows) != 3 || last.Number != 3 {
		t.Fatalf("expected 3 rows on page 3, got %d on page %d", len(last.Rows), last.Number)
	}
}

func TestPaginateClampsPage(t *testing.T) {
	rows := []aggregate.Row{row("p1", "a.pdf"), row("p1", "b.pdf")}

	p := Paginate(rows, 99, 1)
	if p.Number != 2 {
		t.Errorf("page clamped to %d, want 2", p.Number)
	}
	p = Paginate(rows, -4, 1)
	if p.Number != 1 {
		t.Errorf("page clamped to %d, want 1", p.Number)
	}
}

func TestPaginateEmpty(t *testing.T) {
	p := Paginate(nil, 3, 10)
	if p.Number != 1 || p.TotalPages != 1 || len(p.Rows) != 0 {
		t.Fatalf("empty set should yield page 1 of 1, got %+v", p)
	}
}

func TestPaginateSizeZeroReturnsAll(t *testing.T) {
	rows := []aggregate.Row{row("p1", "a.pdf"), row("p1", "b.pdf")}
	p := Paginate(rows, 5, 0)
	if len(p.Rows) != 2 || p.TotalPages != 1 {
		t.Fatalf("size 0 should return everything, got %+v", p)
	}
}

func TestSelectPicksScreenFolders(t *testing.T) {
	contract := row("p1", "contract.pdf")
	upload := row("p1", "photo.jpg")
	upload.FolderPath = FolderCustomerPhotos.Path()
	inspection := row("p1", "report.pdf")
	inspection.FolderPath = FolderInspectionReports.Path()
	rows := []aggregate.Row{contract, upload, inspection}

	got := Files.Select(rows)
	if len(got) != 1 || got[0].FileName != "photo.jpg" {
		t.Fatalf("files screen should select only customer uploads, got %+v", got)
	}
	got = Tracking.Select(rows)
	if len(got) != 2 {
		t.Fatalf("tracking screen should select contract and report, got %d rows", len(got))
	}
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	old := row("p1", "old.pdf")
	old.FolderPath = FolderInspectionReports.Path()
	old.UploadedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := row("p1", "new.pdf")
	fresh.FolderPath = FolderInspectionReports.Path()
	fresh.UploadedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []aggregate.Row{old, fresh}

	got := Audit.Select(rows)
	if got[0].FileName != "new.pdf" {
		t.Fatalf("audit screen sorts by recency, got %q first", got[0].FileName)
	}
	if rows[0].FileName != "old.pdf" {
		t.Fatalf("select must not reorder the shared snapshot")
	}
}

func TestApprovalsUndoneFirst(t *testing.T) {
	approved := row("p1", "approved.pdf")
	approved.FolderPath = FolderAnnualReports.Path()
	approved.Approval = &aggregate.Status{Done: true, At: time.Now()}
	approved.UploadedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pending := row("p1", "pending.pdf")
	pending.FolderPath = FolderAnnualReports.Path()
	pending.UploadedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := Approvals.Select([]aggregate.Row{approved, pending})
	if got[0].FileName != "pending.pdf" {
		t.Fatalf("approvals screen lists pending rows first, got %q", got[0].FileName)
	}
}

func TestAllFoldersDeduplicated(t *testing.T) {
	folders := AllFolders()
	if len(folders) != 6 {
		t.Fatalf("expected 6 distinct folders across screens, got %d", len(folders))
	}
	seen := make(map[string]bool)
	for _, f := range folders {
		if seen[f.Key()] {
			t.Errorf("folder %q appears twice", f.Key())
		}
		seen[f.Key()] = true
	}
}

func TestByName(t *testing.T) {
	if _, ok := ByName("tracking"); !ok {
		t.Errorf("tracking screen should exist")
	}
	if _, ok := ByName("unknown"); ok {
		t.Errorf("unknown screen should not resolve")
	}
}
