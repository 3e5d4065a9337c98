// Package journal keeps a git-backed audit trail. Every mutating action
// appends one commit to a local repository, one JSON file per entity path,
// so the activity feed is an ordered, tamper-evident log that survives the
// hosted database.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Entry is one recorded action.
type Entry struct {
	Action  string            `json:"action"`
	Actor   string            `json:"actor"`
	Project string            `json:"project,omitempty"`
	Target  string            `json:"target"`
	Details map[string]string `json:"details,omitempty"`
	At      time.Time         `json:"at"`
}

// Record is one journal commit as served to the activity feed.
type Record struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Actor   string    `json:"actor"`
	At      time.Time `json:"at"`
}

type Service struct {
	baseDir string
	mu      sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{baseDir: baseDir}
}

// Append records one entry as a commit. The entry's JSON lands in a file
// named after the target, so the per-entity history is a plain git log of
// that file.
func (s *Service) Append(entry Entry) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}

	repo, err := s.ensureRepo()
	if err != nil {
		return Record{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Record{}, fmt.Errorf("open worktree: %w", err)
	}

	relPath := filepath.Join("entries", sanitizeTarget(entry.Target)+".json")
	absPath := filepath.Join(s.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return Record{}, fmt.Errorf("create entry dir: %w", err)
	}
	payload, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("marshal entry: %w", err)
	}
	if err := os.WriteFile(absPath, append(payload, '\n'), 0o644); err != nil {
		return Record{}, fmt.Errorf("write entry: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return Record{}, fmt.Errorf("git add entry: %w", err)
	}

	hash, err := worktree.Commit(fmt.Sprintf("%s %s", entry.Action, entry.Target), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  entry.Actor,
			Email: fmt.Sprintf("%s@journal.foreman.local", sanitizeEmail(entry.Actor)),
			When:  entry.At,
		},
	})
	if err != nil {
		return Record{}, fmt.Errorf("commit entry: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Record{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRecord(commitObj), nil
}

// Recent returns the newest journal records, most recent first. A journal
// that has never been written to yields an empty list.
func (s *Service) Recent(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.baseDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	records := make([]Record, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		records = append(records, toRecord(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return records, nil
}

// TargetHistory returns the records that touched one target, newest first.
func (s *Service) TargetHistory(target string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.baseDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	relPath := filepath.ToSlash(filepath.Join("entries", sanitizeTarget(target)+".json"))
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &relPath})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	records := make([]Record, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		records = append(records, toRecord(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return records, nil
}

func (s *Service) ensureRepo() (*git.Repository, error) {
	if repo, err := git.PlainOpen(s.baseDir); err == nil {
		return repo, nil
	} else if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	repo, err := git.PlainInit(s.baseDir, false)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	meta := fmt.Sprintf("{\n  \"createdAt\": %q\n}\n", time.Now().Format(time.RFC3339))
	if err := os.WriteFile(filepath.Join(s.baseDir, "journal.json"), []byte(meta), 0o644); err != nil {
		return nil, fmt.Errorf("write journal metadata: %w", err)
	}
	if _, err := worktree.Add("journal.json"); err != nil {
		return nil, fmt.Errorf("git add metadata: %w", err)
	}
	hash, err := worktree.Commit("Journal initialized", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Foreman",
			Email: "journal@foreman.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit metadata: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func toRecord(commitObj *object.Commit) Record {
	return Record{
		Hash:    commitObj.Hash.String()[:7],
		Message: strings.TrimSpace(commitObj.Message),
		Actor:   commitObj.Author.Name,
		At:      commitObj.Author.When,
	}
}

func sanitizeTarget(target string) string {
	cleaned := strings.ReplaceAll(target, "/", "__")
	cleaned = strings.ReplaceAll(cleaned, string(filepath.Separator), "__")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
