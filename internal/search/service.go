package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// the in-memory mirror. Every record indexed through the service lands
// in both backends, Meilisearch asynchronously.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, memory *Memory) *Service {
	if memory == nil {
		memory = NewMemory()
	}
	return &Service{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise falls back to the
// in-memory mirror.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to memory: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: memory backend: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexFile indexes a file (fire-and-forget to Meilisearch).
func (s *Service) IndexFile(f FileRecord) {
	s.memory.IndexFile(f)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexFile(f); err != nil {
			log.Printf("search: index file %s: %v", f.Key, err)
		}
	}()
}

// IndexCustomer indexes a customer (fire-and-forget to Meilisearch).
func (s *Service) IndexCustomer(c CustomerRecord) {
	s.memory.IndexCustomer(c)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCustomer(c); err != nil {
			log.Printf("search: index customer %s: %v", c.ID, err)
		}
	}()
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(p ProjectRecord) {
	s.memory.IndexProject(p)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProject(p); err != nil {
			log.Printf("search: index project %s: %v", p.ID, err)
		}
	}()
}

// DeleteFile removes a file from both backends (fire-and-forget).
func (s *Service) DeleteFile(key string) {
	s.memory.DeleteFile(key)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteFile(key); err != nil {
			log.Printf("search: delete file %s: %v", key, err)
		}
	}()
}

// DeleteCustomer removes a customer from both backends (fire-and-forget).
func (s *Service) DeleteCustomer(id string) {
	s.memory.DeleteCustomer(id)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCustomer(id); err != nil {
			log.Printf("search: delete customer %s: %v", id, err)
		}
	}()
}

// DeleteProject removes a project from both backends (fire-and-forget).
func (s *Service) DeleteProject(id string) {
	s.memory.DeleteProject(id)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProject(id); err != nil {
			log.Printf("search: delete project %s: %v", id, err)
		}
	}()
}

// ReindexFiles replaces the mirrored file set after a refresh pass and
// pushes the batch to Meilisearch.
func (s *Service) ReindexFiles(files []FileRecord) {
	s.memory.SetFiles(files)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexFiles(files); err != nil {
			log.Printf("search: reindex files: %v", err)
		}
	}()
}

// ReindexAll seeds both backends with full entity sets. Called during
// Bootstrap once the stores have been read.
func (s *Service) ReindexAll(files []FileRecord, customers []CustomerRecord, projects []ProjectRecord) {
	s.memory.SetFiles(files)
	for _, c := range customers {
		s.memory.IndexCustomer(c)
	}
	for _, p := range projects {
		s.memory.IndexProject(p)
	}

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexFiles(files); err != nil {
		log.Printf("search: reindex files: %v", err)
	}
	if err := s.meili.IndexCustomers(customers); err != nil {
		log.Printf("search: reindex customers: %v", err)
	}
	if err := s.meili.IndexProjects(projects); err != nil {
		log.Printf("search: reindex projects: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
