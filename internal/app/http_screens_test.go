package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"foreman/api/internal/store"
)

// seedScreenData wires two customers, two projects, and a handful of files
// across the folder taxonomy into an existing fake store. Returns the key of
// the one file that carries a read receipt.
func seedScreenData(fs *fakeStore) string {
	base := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)

	customers := []store.Customer{
		{ID: "cus_1", UID: "uid_nordic", CustomerNumber: "10001", Name: "Nordic Builds AS", Email: "post@nordicbuilds.example", Enabled: true},
		{ID: "cus_2", UID: "uid_fjell", CustomerNumber: "10002", Name: "Fjellhus AS", Email: "kontakt@fjellhus.example", Enabled: true},
	}
	projects := []store.Project{
		{ID: "prj_1", Name: "Roof Renovation", CustomerID: "uid_nordic", ProjectNumber: "2024-014", Year: 2024, Enabled: true},
		{ID: "prj_2", Name: "Garage Extension", CustomerID: "uid_fjell", ProjectNumber: "2025-003", Year: 2025, Enabled: true},
	}

	docsKey := store.FolderKey([]string{"Customer Uploads", "Documents"})
	inspectionKey := store.FolderKey([]string{"Reports", "Inspection"})
	files := map[string][]store.FileRecord{
		"prj_1/" + docsKey: {
			{ID: "fil_1", FileName: "site-survey.pdf", StorageID: "sto_1", Size: 100, UploadedBy: "portal", UploadedAt: base},
		},
		"prj_2/" + docsKey: {
			{ID: "fil_2", FileName: "permit.pdf", StorageID: "sto_2", Size: 200, UploadedBy: "portal", UploadedAt: base.Add(time.Hour)},
		},
		"prj_1/" + inspectionKey: {
			{ID: "fil_3", FileName: "inspection-2024.pdf", StorageID: "sto_3", Size: 300, UploadedBy: "Kari Staff", UploadedAt: base.Add(2 * time.Hour)},
		},
	}

	readKey := store.FileKey("prj_2", docsKey, "permit.pdf")
	readMap := map[string]store.StatusRecord{
		readKey: {Done: true, Actor: "Kari Staff", StorageID: "sto_2", UpdatedAt: base.Add(90 * time.Minute)},
	}

	fs.listCustomersFn = func(ctx context.Context) ([]store.Customer, error) { return customers, nil }
	fs.listProjectsFn = func(ctx context.Context) ([]store.Project, error) { return projects, nil }
	fs.listFolderFilesFn = func(ctx context.Context, projectID, folderKey string) ([]store.FileRecord, error) {
		return files[projectID+"/"+folderKey], nil
	}
	fs.statusMapFn = func(ctx context.Context, kind string) (map[string]store.StatusRecord, error) {
		if kind == store.StatusRead {
			return readMap, nil
		}
		return map[string]store.StatusRecord{}, nil
	}
	return readKey
}

func rowsOf(t *testing.T, response map[string]any) []map[string]any {
	t.Helper()
	raw, ok := response["rows"].([]any)
	if !ok {
		t.Fatalf("rows missing or not a list: %v", response["rows"])
	}
	rows := make([]map[string]any, len(raw))
	for i, r := range raw {
		row, ok := r.(map[string]any)
		if !ok {
			t.Fatalf("row %d is not an object: %v", i, r)
		}
		rows[i] = row
	}
	return rows
}

func TestScreenEndpoints_RenderSnapshot(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)
	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	server := NewHTTPServer(svc, "*")

	cases := []struct {
		screen    string
		wantTitle string
		wantRows  int
	}{
		{"files", "Customer Uploads", 2},
		{"tracking", "Read Tracking", 1},
		{"audit", "Approval Audit", 1},
		{"approvals", "Pending Approvals", 1},
	}
	for _, tc := range cases {
		t.Run(tc.screen, func(t *testing.T) {
			rr := doRequest(server, http.MethodGet, "/api/"+tc.screen, token, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			response := decodeResponse(t, rr)
			if response["screen"] != tc.screen {
				t.Errorf("screen = %v, want %q", response["screen"], tc.screen)
			}
			if response["title"] != tc.wantTitle {
				t.Errorf("title = %v, want %q", response["title"], tc.wantTitle)
			}
			if got := len(rowsOf(t, response)); got != tc.wantRows {
				t.Errorf("rows = %d, want %d", got, tc.wantRows)
			}
			if response["generation"] != float64(1) {
				t.Errorf("generation = %v, want 1", response["generation"])
			}
		})
	}
}

func TestFilesScreen_UnreadSortsFirst(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)
	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/files", token, nil)
	rows := rowsOf(t, decodeResponse(t, rr))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// permit.pdf is newer but already read; the unread upload outranks it.
	if rows[0]["fileName"] != "site-survey.pdf" {
		t.Errorf("first row = %v, want the unread site-survey.pdf", rows[0]["fileName"])
	}
	if _, hasRead := rows[0]["read"]; hasRead {
		t.Error("expected no read status on the first row")
	}
	readStatus, ok := rows[1]["read"].(map[string]any)
	if !ok {
		t.Fatalf("expected a read status on the second row, got %v", rows[1]["read"])
	}
	if readStatus["done"] != true || readStatus["actor"] != "Kari Staff" {
		t.Errorf("read status = %v, want done by Kari Staff", readStatus)
	}
	if rows[1]["customerName"] != "Fjellhus AS" {
		t.Errorf("customerName = %v, want the owning customer", rows[1]["customerName"])
	}
}

func TestScreenEndpoint_ProjectFilter(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)
	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/files?project=prj_2", token, nil)
	response := decodeResponse(t, rr)
	rows := rowsOf(t, response)
	if len(rows) != 1 || rows[0]["projectId"] != "prj_2" {
		t.Fatalf("expected only the prj_2 row, got %v", rows)
	}
	if response["totalRows"] != float64(1) {
		t.Errorf("totalRows = %v, want 1", response["totalRows"])
	}
}

func TestScreenEndpoint_TextFilter(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)
	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	server := NewHTTPServer(svc, "*")

	// File name match.
	rr := doRequest(server, http.MethodGet, "/api/files?q=survey", token, nil)
	rows := rowsOf(t, decodeResponse(t, rr))
	if len(rows) != 1 || rows[0]["fileName"] != "site-survey.pdf" {
		t.Fatalf("q=survey: got %v", rows)
	}

	// Customer number match, case handled by the filter.
	rr = doRequest(server, http.MethodGet, "/api/files?q=10002", token, nil)
	rows = rowsOf(t, decodeResponse(t, rr))
	if len(rows) != 1 || rows[0]["fileName"] != "permit.pdf" {
		t.Fatalf("q=10002: got %v", rows)
	}
}

func TestScreenEndpoint_Pagination(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)
	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/files?pageSize=1&page=2", token, nil)
	response := decodeResponse(t, rr)
	if got := len(rowsOf(t, response)); got != 1 {
		t.Fatalf("expected 1 row on page 2, got %d", got)
	}
	if response["page"] != float64(2) || response["totalPages"] != float64(2) || response["totalRows"] != float64(2) {
		t.Errorf("pager = page %v of %v (%v rows), want 2 of 2 (2 rows)",
			response["page"], response["totalPages"], response["totalRows"])
	}

	// Out-of-range pages clamp to the last page instead of erroring.
	rr = doRequest(server, http.MethodGet, "/api/files?pageSize=1&page=99", token, nil)
	response = decodeResponse(t, rr)
	if response["page"] != float64(2) {
		t.Errorf("page = %v, want clamp to 2", response["page"])
	}
}

func TestScreenEndpoint_BadPageParam(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/files?page=abc", token, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if response := decodeResponse(t, rr); response["code"] != "VALIDATION_ERROR" {
		t.Errorf("code = %v, want VALIDATION_ERROR", response["code"])
	}
}

func TestScreenEndpoint_UnknownScreen(t *testing.T) {
	svc, _, token := seededService(t, "viewer")
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/weather", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestScreenEndpoint_EmptyBeforeFirstPass(t *testing.T) {
	svc, _, token := seededService(t, "viewer")
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/files", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if got := len(rowsOf(t, response)); got != 0 {
		t.Errorf("expected no rows before the first pass, got %d", got)
	}
	if response["generation"] != float64(0) {
		t.Errorf("generation = %v, want 0", response["generation"])
	}
}

func TestRunRefresh_KeepsSnapshotOnStoreFailure(t *testing.T) {
	svc, fs, _ := seededService(t, "viewer")
	seedScreenData(fs)
	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := svc.state.Current()
	if before.Generation != 1 || len(before.Rows) != 3 {
		t.Fatalf("unexpected first snapshot: gen %d, %d rows", before.Generation, len(before.Rows))
	}

	fs.listProjectsFn = func(ctx context.Context) ([]store.Project, error) {
		return nil, errors.New("firestore unavailable")
	}
	if err := svc.RunRefresh(context.Background()); err == nil {
		t.Fatal("expected the failed pass to report an error")
	}

	after := svc.state.Current()
	if after.Generation != before.Generation || len(after.Rows) != len(before.Rows) {
		t.Errorf("snapshot changed after a failed pass: gen %d, %d rows", after.Generation, len(after.Rows))
	}
}

func TestRunRefresh_SkipsFailedFolder(t *testing.T) {
	svc, fs, token := seededService(t, "viewer")
	seedScreenData(fs)

	inspectionKey := store.FolderKey([]string{"Reports", "Inspection"})
	inner := fs.listFolderFilesFn
	fs.listFolderFilesFn = func(ctx context.Context, projectID, folderKey string) ([]store.FileRecord, error) {
		if folderKey == inspectionKey {
			return nil, errors.New("collection unavailable")
		}
		return inner(ctx, projectID, folderKey)
	}

	if err := svc.RunRefresh(context.Background()); err != nil {
		t.Fatalf("expected a folder failure to be absorbed, got %v", err)
	}
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/tracking", token, nil)
	if got := len(rowsOf(t, decodeResponse(t, rr))); got != 0 {
		t.Errorf("tracking rows = %d, want 0 with the folder down", got)
	}
	rr = doRequest(server, http.MethodGet, "/api/files", token, nil)
	if got := len(rowsOf(t, decodeResponse(t, rr))); got != 2 {
		t.Errorf("files rows = %d, want the healthy folders intact", got)
	}
}
