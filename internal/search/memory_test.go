package search

import "testing"

func seededMemory() *Memory {
	m := NewMemory()
	m.SetFiles([]FileRecord{
		{Key: "prj_1__Reports__Inspection__roof-check.pdf", FileName: "roof-check.pdf", FolderName: "Inspection", ProjectID: "prj_1", ProjectName: "Seaside Cabin", CustomerName: "Ola Hansen", CustomerNumber: "K-100"},
		{Key: "prj_1__Customer Uploads__Documents__insurance.pdf", FileName: "insurance.pdf", FolderName: "Documents", ProjectID: "prj_1", ProjectName: "Seaside Cabin", CustomerName: "Ola Hansen", CustomerNumber: "K-100"},
		{Key: "prj_2__Reports__Annual__2024.pdf", FileName: "2024.pdf", FolderName: "Annual", ProjectID: "prj_2", ProjectName: "Harbor House", CustomerName: "Kari Berg", CustomerNumber: "K-200"},
	})
	m.IndexCustomer(CustomerRecord{ID: "cus_1", Name: "Ola Hansen", Email: "ola@example.com", CustomerNumber: "K-100"})
	m.IndexCustomer(CustomerRecord{ID: "cus_2", Name: "Kari Berg", Email: "kari@example.com", CustomerNumber: "K-200"})
	m.IndexProject(ProjectRecord{ID: "prj_1", Name: "Seaside Cabin", ProjectNumber: "2024-017", Year: "2024"})
	m.IndexProject(ProjectRecord{ID: "prj_2", Name: "Harbor House", ProjectNumber: "2024-031", Year: "2024"})
	return m
}

func TestMemorySearchAcrossTypes(t *testing.T) {
	m := seededMemory()

	results, total, err := m.Search(Query{Text: "seaside"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 hits (2 files + 1 project), got %d", total)
	}

	types := map[ResultType]int{}
	for _, r := range results {
		types[r.Type]++
	}
	if types[ResultFile] != 2 || types[ResultProject] != 1 {
		t.Fatalf("unexpected type spread: %v", types)
	}
}

func TestMemorySearchCaseInsensitive(t *testing.T) {
	m := seededMemory()

	_, lower, err := m.Search(Query{Text: "kari"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	_, upper, err := m.Search(Query{Text: "KARI"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if lower == 0 || lower != upper {
		t.Fatalf("case sensitivity leak: lower=%d upper=%d", lower, upper)
	}
}

func TestMemorySearchAllTermsMustMatch(t *testing.T) {
	m := seededMemory()

	_, total, err := m.Search(Query{Text: "seaside insurance"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected only the file matching both terms, got %d", total)
	}

	_, total, err = m.Search(Query{Text: "seaside zeppelin"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no hits when one term misses, got %d", total)
	}
}

func TestMemorySearchFilterType(t *testing.T) {
	m := seededMemory()

	results, total, err := m.Search(Query{Text: "k-100", FilterType: ResultCustomer})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 customer hit, got %d", total)
	}
	if results[0].Type != ResultCustomer || results[0].ID != "cus_1" {
		t.Fatalf("unexpected hit: %+v", results[0])
	}
}

func TestMemorySearchProjectFilterRestrictsToFiles(t *testing.T) {
	m := seededMemory()

	results, total, err := m.Search(Query{Text: "2024", FilterProjectID: "prj_2"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 file hit in prj_2, got %d", total)
	}
	if results[0].Type != ResultFile || results[0].ProjectID != "prj_2" {
		t.Fatalf("unexpected hit: %+v", results[0])
	}
}

func TestMemorySearchPagination(t *testing.T) {
	m := seededMemory()

	first, total, err := m.Search(Query{Text: "seaside", Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 3 || len(first) != 2 {
		t.Fatalf("expected total 3 with 2 returned, got total=%d len=%d", total, len(first))
	}

	rest, total, err := m.Search(Query{Text: "seaside", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 3 || len(rest) != 1 {
		t.Fatalf("expected total 3 with 1 returned, got total=%d len=%d", total, len(rest))
	}

	past, _, err := m.Search(Query{Text: "seaside", Limit: 2, Offset: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected no results past the end, got %d", len(past))
	}
}

func TestMemoryDeleteFile(t *testing.T) {
	m := seededMemory()

	if err := m.DeleteFile("prj_2__Reports__Annual__2024.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, total, err := m.Search(Query{Text: "annual"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected deleted file gone, got %d hits", total)
	}
}

func TestMemorySetFilesReplaces(t *testing.T) {
	m := seededMemory()

	m.SetFiles([]FileRecord{
		{Key: "prj_1__Contracts__offer.pdf", FileName: "offer.pdf", FolderName: "Contracts", ProjectID: "prj_1", ProjectName: "Seaside Cabin"},
	})

	_, total, err := m.Search(Query{Text: "insurance", FilterType: ResultFile})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected old file set replaced, got %d hits", total)
	}

	_, total, err = m.Search(Query{Text: "offer", FilterType: ResultFile})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected new file indexed, got %d hits", total)
	}
}

func TestMemorySearchEmptyQuery(t *testing.T) {
	m := seededMemory()

	results, total, err := m.Search(Query{Text: "   "})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 0 || len(results) != 0 {
		t.Fatalf("expected blank query to match nothing, got total=%d", total)
	}
}
