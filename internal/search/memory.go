package search

import (
	"sort"
	"strings"
	"sync"
)

// Memory implements Searcher over in-process record maps. The service
// mirrors every record it indexes into here, so search keeps answering
// when Meilisearch is down.
type Memory struct {
	mu        sync.RWMutex
	files     map[string]FileRecord
	customers map[string]CustomerRecord
	projects  map[string]ProjectRecord
}

// NewMemory creates an empty in-memory search backend.
func NewMemory() *Memory {
	return &Memory{
		files:     make(map[string]FileRecord),
		customers: make(map[string]CustomerRecord),
		projects:  make(map[string]ProjectRecord),
	}
}

// Healthy always returns true - the fallback has nothing to be down.
func (m *Memory) Healthy() bool {
	return true
}

type scored struct {
	result Result
	score  int
}

// Search scans the mirrored records. Every term must match at least one
// searchable field; more field hits rank higher.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	var hits []scored
	if wantType(q, ResultFile) {
		for _, f := range m.files {
			if q.FilterProjectID != "" && f.ProjectID != q.FilterProjectID {
				continue
			}
			score := matchScore(terms, f.FileName, f.FolderName, f.CustomerName, f.CustomerNumber, f.ProjectName)
			if score == 0 {
				continue
			}
			hits = append(hits, scored{score: score, result: Result{
				Type:        ResultFile,
				ID:          f.Key,
				Title:       f.FileName,
				Snippet:     fileSnippet(f.ProjectName, f.FolderName),
				ProjectID:   f.ProjectID,
				ProjectName: f.ProjectName,
			}})
		}
	}
	if wantType(q, ResultCustomer) && q.FilterProjectID == "" {
		for _, c := range m.customers {
			score := matchScore(terms, c.Name, c.Email, c.CustomerNumber, c.MobileNumber)
			if score == 0 {
				continue
			}
			hits = append(hits, scored{score: score, result: Result{
				Type:    ResultCustomer,
				ID:      c.ID,
				Title:   c.Name,
				Snippet: c.Email,
			}})
		}
	}
	if wantType(q, ResultProject) && q.FilterProjectID == "" {
		for _, p := range m.projects {
			score := matchScore(terms, p.Name, p.ProjectNumber, p.Year)
			if score == 0 {
				continue
			}
			hits = append(hits, scored{score: score, result: Result{
				Type:        ResultProject,
				ID:          p.ID,
				Title:       p.Name,
				Snippet:     p.ProjectNumber,
				ProjectID:   p.ID,
				ProjectName: p.Name,
			}})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].result.Title < hits[j].result.Title
	})

	total := len(hits)
	if offset >= total {
		return []Result{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	results := make([]Result, 0, end-offset)
	for _, h := range hits[offset:end] {
		results = append(results, h.result)
	}
	return results, total, nil
}

func wantType(q Query, t ResultType) bool {
	return q.FilterType == "" || q.FilterType == t
}

// matchScore returns 0 unless every term matches at least one field,
// otherwise the total number of (term, field) hits.
func matchScore(terms []string, fields ...string) int {
	total := 0
	for _, term := range terms {
		hits := 0
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				hits++
			}
		}
		if hits == 0 {
			return 0
		}
		total += hits
	}
	return total
}

// SetFiles replaces the whole mirrored file set in one swap.
func (m *Memory) SetFiles(files []FileRecord) {
	next := make(map[string]FileRecord, len(files))
	for _, f := range files {
		next[f.Key] = f
	}
	m.mu.Lock()
	m.files = next
	m.mu.Unlock()
}

// IndexFile adds or updates one file.
func (m *Memory) IndexFile(f FileRecord) error {
	m.mu.Lock()
	m.files[f.Key] = f
	m.mu.Unlock()
	return nil
}

// IndexCustomer adds or updates one customer.
func (m *Memory) IndexCustomer(c CustomerRecord) error {
	m.mu.Lock()
	m.customers[c.ID] = c
	m.mu.Unlock()
	return nil
}

// IndexProject adds or updates one project.
func (m *Memory) IndexProject(p ProjectRecord) error {
	m.mu.Lock()
	m.projects[p.ID] = p
	m.mu.Unlock()
	return nil
}

// DeleteFile removes one file.
func (m *Memory) DeleteFile(key string) error {
	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
	return nil
}

// DeleteCustomer removes one customer.
func (m *Memory) DeleteCustomer(id string) error {
	m.mu.Lock()
	delete(m.customers, id)
	m.mu.Unlock()
	return nil
}

// DeleteProject removes one project.
func (m *Memory) DeleteProject(id string) error {
	m.mu.Lock()
	delete(m.projects, id)
	m.mu.Unlock()
	return nil
}
