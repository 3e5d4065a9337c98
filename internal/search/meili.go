package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxFiles     = "foreman_files"
	idxCustomers = "foreman_customers"
	idxProjects  = "foreman_projects"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns a client that reports unhealthy if the initial connection
// fails (the caller keeps it and the health loop picks up recovery).
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxFiles,
			primaryKey: "id",
			filterable: []string{"projectId"},
			searchable: []string{"fileName", "folderName", "customerName", "customerNumber", "projectName"},
		},
		{
			uid:        idxCustomers,
			primaryKey: "id",
			filterable: []string{"customerNumber"},
			searchable: []string{"name", "email", "customerNumber", "mobileNumber"},
		},
		{
			uid:        idxProjects,
			primaryKey: "id",
			filterable: []string{"customerId", "year"},
			searchable: []string{"name", "projectNumber", "year"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges
// results. A project filter narrows the search to that project's files;
// customers and projects are not scoped to a project, so their indexes
// are skipped.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxFiles, ResultFile},
		{idxCustomers, ResultCustomer},
		{idxProjects, ResultProject},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		if q.FilterProjectID != "" && ti.rtyp != ResultFile {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		if q.FilterProjectID != "" {
			sr.Filter = []string{fmt.Sprintf("projectId = %q", q.FilterProjectID)}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxFiles:
		return ResultFile
	case idxCustomers:
		return ResultCustomer
	case idxProjects:
		return ResultProject
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}

	switch rtyp {
	case ResultFile:
		r.ID = decodeString(hit, "key")
		r.ProjectID = decodeString(hit, "projectId")
		r.ProjectName = decodeString(hit, "projectName")
		r.Title = firstNonBlank(decodeFormattedString(hit, "fileName"), decodeString(hit, "fileName"))
		r.Snippet = fileSnippet(r.ProjectName, decodeString(hit, "folderName"))
	case ResultCustomer:
		r.ID = decodeString(hit, "id")
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "email"), decodeString(hit, "email"))
	case ResultProject:
		r.ID = decodeString(hit, "id")
		r.ProjectID = r.ID // project's own ID
		r.ProjectName = decodeString(hit, "name")
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "projectNumber"), decodeString(hit, "projectNumber"))
	}
	return r
}

// fileSnippet builds the "where it lives" line shown under a file hit.
func fileSnippet(projectName, folderName string) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(projectName) != "" {
		parts = append(parts, projectName)
	}
	if strings.TrimSpace(folderName) != "" {
		parts = append(parts, folderName)
	}
	return strings.Join(parts, " / ")
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// fileDocID derives a Meilisearch-safe document id from an aggregate row
// key. Keys contain dots, which Meilisearch rejects in primary keys.
func fileDocID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "file_" + hex.EncodeToString(sum[:8])
}

// IndexFile adds or updates a file in the search index.
func (m *Meili) IndexFile(f FileRecord) error {
	f.ID = fileDocID(f.Key)
	_, err := m.client.Index(idxFiles).AddDocuments([]FileRecord{f}, nil)
	return err
}

// IndexCustomer adds or updates a customer in the search index.
func (m *Meili) IndexCustomer(c CustomerRecord) error {
	_, err := m.client.Index(idxCustomers).AddDocuments([]CustomerRecord{c}, nil)
	return err
}

// IndexProject adds or updates a project in the search index.
func (m *Meili) IndexProject(p ProjectRecord) error {
	_, err := m.client.Index(idxProjects).AddDocuments([]ProjectRecord{p}, nil)
	return err
}

// DeleteFile removes a file from the search index.
func (m *Meili) DeleteFile(key string) error {
	_, err := m.client.Index(idxFiles).DeleteDocument(fileDocID(key), nil)
	return err
}

// DeleteCustomer removes a customer from the search index.
func (m *Meili) DeleteCustomer(id string) error {
	_, err := m.client.Index(idxCustomers).DeleteDocument(id, nil)
	return err
}

// DeleteProject removes a project from the search index.
func (m *Meili) DeleteProject(id string) error {
	_, err := m.client.Index(idxProjects).DeleteDocument(id, nil)
	return err
}

// IndexFiles bulk-indexes files.
func (m *Meili) IndexFiles(files []FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	docs := make([]FileRecord, len(files))
	for i, f := range files {
		f.ID = fileDocID(f.Key)
		docs[i] = f
	}
	_, err := m.client.Index(idxFiles).AddDocuments(docs, nil)
	return err
}

// IndexCustomers bulk-indexes customers.
func (m *Meili) IndexCustomers(customers []CustomerRecord) error {
	if len(customers) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCustomers).AddDocuments(customers, nil)
	return err
}

// IndexProjects bulk-indexes projects.
func (m *Meili) IndexProjects(projects []ProjectRecord) error {
	if len(projects) == 0 {
		return nil
	}
	_, err := m.client.Index(idxProjects).AddDocuments(projects, nil)
	return err
}
