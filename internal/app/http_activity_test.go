package app

import (
	"net/http"
	"testing"

	"foreman/api/internal/journal"
)

func activityEntries(t *testing.T, response map[string]any) []map[string]any {
	t.Helper()
	raw, ok := response["entries"].([]any)
	if !ok {
		t.Fatalf("entries missing or not a list: %v", response["entries"])
	}
	entries := make([]map[string]any, len(raw))
	for i, r := range raw {
		entries[i] = r.(map[string]any)
	}
	return entries
}

func TestActivityEndpoint(t *testing.T) {
	svc, _, token := seededService(t, "viewer")
	fj := &fakeJournal{}
	svc.journal = fj
	fj.Append(journal.Entry{Action: "customer.create", Actor: "Anna Larsen", Target: "customers/uid_1"})
	fj.Append(journal.Entry{Action: "file.upload", Actor: "Anna Larsen", Target: "prj_1__Contracts__deal.pdf"})
	fj.Append(journal.Entry{Action: "file.read", Actor: "Kari Nilsen", Target: "prj_1__Contracts__deal.pdf"})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/activity", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	entries := activityEntries(t, decodeResponse(t, rr))
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0]["message"] != "file.read prj_1__Contracts__deal.pdf" {
		t.Errorf("first entry = %v", entries[0])
	}
	if entries[0]["actor"] != "Kari Nilsen" {
		t.Errorf("actor = %v", entries[0]["actor"])
	}
	if entries[2]["message"] != "customer.create customers/uid_1" {
		t.Errorf("last entry = %v", entries[2])
	}

	rr = doRequest(server, http.MethodGet, "/api/activity?limit=2", token, nil)
	if got := len(activityEntries(t, decodeResponse(t, rr))); got != 2 {
		t.Errorf("limited entries = %d, want 2", got)
	}
}

func TestActivityEndpoint_TargetFilter(t *testing.T) {
	svc, _, token := seededService(t, "viewer")
	fj := &fakeJournal{}
	svc.journal = fj
	fj.Append(journal.Entry{Action: "customer.create", Actor: "Anna Larsen", Target: "customers/uid_1"})
	fj.Append(journal.Entry{Action: "file.upload", Actor: "Anna Larsen", Target: "prj_1__Contracts__deal.pdf"})
	fj.Append(journal.Entry{Action: "customer.update", Actor: "Kari Nilsen", Target: "customers/uid_1"})
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/activity?target=customers/uid_1", token, nil)
	entries := activityEntries(t, decodeResponse(t, rr))
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want the two customer commits", len(entries))
	}
	if entries[0]["message"] != "customer.update customers/uid_1" {
		t.Errorf("first entry = %v", entries[0])
	}
}

func TestActivityEndpoint_WithoutJournal(t *testing.T) {
	svc, _, token := seededService(t, "viewer")
	server := NewHTTPServer(svc, "*")

	rr := doRequest(server, http.MethodGet, "/api/activity", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := len(activityEntries(t, decodeResponse(t, rr))); got != 0 {
		t.Errorf("entries = %d, want an empty feed when no journal is configured", got)
	}
}
