package journal

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestAppendAndRecent(t *testing.T) {
	svc := New(t.TempDir())

	first, err := svc.Append(Entry{
		Action:  "upload",
		Actor:   "Berit",
		Project: "prj_1",
		Target:  "prj_1/Contracts/contract.pdf",
		Details: map[string]string{"size": "1024"},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected a commit hash")
	}

	if _, err := svc.Append(Entry{Action: "read", Actor: "Ingrid", Target: "prj_1/Contracts/contract.pdf"}); err != nil {
		t.Fatalf("Append() second entry error = %v", err)
	}

	records, err := svc.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	// Two entries plus the init commit.
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Actor != "Ingrid" || !strings.HasPrefix(records[0].Message, "read ") {
		t.Errorf("newest record = %+v, want Ingrid's read entry", records[0])
	}
	if records[1].Actor != "Berit" {
		t.Errorf("second record = %+v, want Berit's upload entry", records[1])
	}
}

func TestRecentLimit(t *testing.T) {
	svc := New(t.TempDir())
	for i := 0; i < 5; i++ {
		if _, err := svc.Append(Entry{Action: "read", Actor: "Berit", Target: "prj_1/Contracts/c.pdf"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	records, err := svc.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records with limit 2, got %d", len(records))
	}
}

func TestRecentEmptyJournal(t *testing.T) {
	svc := New(filepath.Join(t.TempDir(), "never-written"))
	records, err := svc.Recent(10)
	if err != nil {
		t.Fatalf("Recent() on missing journal error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestEntryFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)

	if _, err := svc.Append(Entry{Action: "approve", Actor: "Ingrid", Target: "prj_2/Reports/Annual/2024.pdf"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	path := filepath.Join(dir, "entries", "prj_2__Reports__Annual__2024.pdf.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("entry file missing: %v", err)
	}
	if !strings.Contains(string(data), "\"approve\"") {
		t.Errorf("entry file does not record the action: %s", data)
	}
}

func TestTargetHistory(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.Append(Entry{Action: "upload", Actor: "Berit", Target: "prj_1/Contracts/a.pdf"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := svc.Append(Entry{Action: "upload", Actor: "Berit", Target: "prj_1/Contracts/b.pdf"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := svc.Append(Entry{Action: "read", Actor: "Ingrid", Target: "prj_1/Contracts/a.pdf"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := svc.TargetHistory("prj_1/Contracts/a.pdf", 10)
	if err != nil {
		t.Fatalf("TargetHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for a.pdf, got %d", len(records))
	}
	if records[0].Actor != "Ingrid" {
		t.Errorf("newest a.pdf record = %+v, want the read entry", records[0])
	}
}

func TestConcurrentAppends(t *testing.T) {
	svc := New(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Append(Entry{Action: "read", Actor: "Berit", Target: "prj_1/Contracts/c.pdf"})
			if err != nil {
				t.Errorf("concurrent Append() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	records, err := svc.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	// Four entries plus the init commit.
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
}
