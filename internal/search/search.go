package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultFile     ResultType = "file"
	ResultCustomer ResultType = "customer"
	ResultProject  ResultType = "project"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	ProjectID   string     `json:"projectId,omitempty"`
	ProjectName string     `json:"projectName,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string     // restricts hits to one project's files
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexFile(f FileRecord) error
	IndexCustomer(c CustomerRecord) error
	IndexProject(p ProjectRecord) error
	DeleteFile(key string) error
	DeleteCustomer(id string) error
	DeleteProject(id string) error
}

// FileRecord is the data we index for an uploaded file. Key is the
// aggregate row key; ID is derived from it by the backends because
// keys contain characters Meilisearch rejects in primary keys.
type FileRecord struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	FileName       string `json:"fileName"`
	FolderName     string `json:"folderName"`
	ProjectID      string `json:"projectId"`
	ProjectName    string `json:"projectName"`
	CustomerName   string `json:"customerName"`
	CustomerNumber string `json:"customerNumber"`
}

// CustomerRecord is the data we index for a customer.
type CustomerRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	CustomerNumber string `json:"customerNumber"`
	MobileNumber   string `json:"mobileNumber"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProjectNumber string `json:"projectNumber"`
	Year          string `json:"year"`
	CustomerID    string `json:"customerId"`
}
