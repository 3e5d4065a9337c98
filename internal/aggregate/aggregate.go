// Package aggregate joins folder-scoped file metadata with projects,
// customers, and status records into flat dashboard rows.
//
// File metadata lives in one collection per (project, folder) pair. A pass
// fetches every pair concurrently, flattens the results, and decorates each
// file with its owning project, that project's customer, and the read and
// approval status keyed by the file's encoded path. A failed folder fetch is
// logged and treated as empty so one bad folder never takes down the pass.
package aggregate

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"foreman/api/internal/store"
	"golang.org/x/sync/errgroup"
)

// Folder identifies one of the fixed folder taxonomies files are organized
// under, e.g. {"Reports", "Inspection"}.
type Folder struct {
	Name     string
	Segments []string
}

// Key is the flattened collection segment for this folder.
func (f Folder) Key() string {
	return store.FolderKey(f.Segments)
}

// Path is the slash-joined display path.
func (f Folder) Path() string {
	return strings.Join(f.Segments, "/")
}

// Status is the decorated form of a status record on a row. A nil Status on
// the row means no record exists, which reads as unread / not yet approved.
type Status struct {
	Done      bool      `json:"done"`
	Actor     string    `json:"actor,omitempty"`
	StorageID string    `json:"storageId,omitempty"`
	At        time.Time `json:"at"`
}

// Row is one file decorated for display.
type Row struct {
	Key            string    `json:"key"`
	ProjectID      string    `json:"projectId"`
	ProjectName    string    `json:"projectName"`
	ProjectNumber  string    `json:"projectNumber,omitempty"`
	CustomerUID    string    `json:"customerUid,omitempty"`
	CustomerNumber string    `json:"customerNumber,omitempty"`
	CustomerName   string    `json:"customerName,omitempty"`
	CustomerEmail  string    `json:"customerEmail,omitempty"`
	FolderName     string    `json:"folderName"`
	FolderPath     string    `json:"folderPath"`
	FileID         string    `json:"fileId"`
	FileName       string    `json:"fileName"`
	StorageID      string    `json:"storageId"`
	ContentURL     string    `json:"contentUrl,omitempty"`
	Size           int64     `json:"size"`
	ContentType    string    `json:"contentType,omitempty"`
	UploadedBy     string    `json:"uploadedBy,omitempty"`
	UploadedAt     time.Time `json:"uploadedAt"`
	Read           *Status   `json:"read,omitempty"`
	Approval       *Status   `json:"approval,omitempty"`
}

// Status returns the row's status of the given kind, nil when absent.
func (r Row) Status(kind string) *Status {
	switch kind {
	case store.StatusRead:
		return r.Read
	case store.StatusApproval:
		return r.Approval
	}
	return nil
}

// Done reports whether the row carries a completed status of the given kind.
func (r Row) Done(kind string) bool {
	st := r.Status(kind)
	return st != nil && st.Done
}

// Inputs is everything one pass needs besides the file collections
// themselves: the folder set, the current projects and customers, and the
// status maps for both kinds.
type Inputs struct {
	Folders   []Folder
	Projects  []store.Project
	Customers []store.Customer
	Read      map[string]store.StatusRecord
	Approval  map[string]store.StatusRecord
}

// FileSource lists the file metadata collection of one (project, folder)
// pair.
type FileSource interface {
	ListFolderFiles(ctx context.Context, projectID, folderKey string) ([]store.FileRecord, error)
}

type Aggregator struct {
	source FileSource
}

func New(source FileSource) *Aggregator {
	return &Aggregator{source: source}
}

// Run fetches every (project, folder) collection concurrently and returns
// one decorated row per file document. A folder whose fetch fails
// contributes no rows; the failure is logged, never returned. The only error
// Run reports is context cancellation. Rows come back grouped by folder then
// project in input order; callers pick a sort.
func (a *Aggregator) Run(ctx context.Context, in Inputs) ([]Row, error) {
	customers := make(map[string]store.Customer, len(in.Customers))
	for _, c := range in.Customers {
		customers[c.UID] = c
	}

	type pair struct {
		project store.Project
		folder  Folder
	}
	var pairs []pair
	for _, folder := range in.Folders {
		for _, project := range in.Projects {
			pairs = append(pairs, pair{project: project, folder: folder})
		}
	}

	results := make([][]store.FileRecord, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		g.Go(func() error {
			files, err := a.source.ListFolderFiles(gctx, p.project.ID, p.folder.Key())
			if err != nil {
				if gctx.Err() == nil {
					log.Printf("aggregate: folder %s/%s: %v", p.project.ID, p.folder.Key(), err)
				}
				return nil
			}
			results[i] = files
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var rows []Row
	for i, p := range pairs {
		for _, file := range results[i] {
			rows = append(rows, a.decorate(p.project, p.folder, file, customers, in.Read, in.Approval))
		}
	}
	return rows, nil
}

func (a *Aggregator) decorate(project store.Project, folder Folder, file store.FileRecord, customers map[string]store.Customer, read, approval map[string]store.StatusRecord) Row {
	row := Row{
		Key:           store.FileKey(project.ID, folder.Key(), file.FileName),
		ProjectID:     project.ID,
		ProjectName:   project.Name,
		ProjectNumber: project.ProjectNumber,
		CustomerUID:   project.CustomerID,
		FolderName:    folder.Name,
		FolderPath:    folder.Path(),
		FileID:        file.ID,
		FileName:      file.FileName,
		StorageID:     file.StorageID,
		ContentURL:    file.ContentURL,
		Size:          file.Size,
		ContentType:   file.ContentType,
		UploadedBy:    file.UploadedBy,
		UploadedAt:    file.UploadedAt,
	}
	// A project may reference a customer that no longer exists; the row keeps
	// blank customer fields rather than failing the pass.
	if customer, ok := customers[project.CustomerID]; ok {
		row.CustomerNumber = customer.CustomerNumber
		row.CustomerName = customer.Name
		row.CustomerEmail = customer.Email
	}
	if rec, ok := read[row.Key]; ok {
		row.Read = statusOf(rec)
	}
	if rec, ok := approval[row.Key]; ok {
		row.Approval = statusOf(rec)
	}
	return row
}

func statusOf(rec store.StatusRecord) *Status {
	return &Status{
		Done:      rec.Done,
		Actor:     rec.Actor,
		StorageID: rec.StorageID,
		At:        rec.UpdatedAt,
	}
}

// ByRecency sorts newest uploads first, file name breaking ties.
func ByRecency(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].UploadedAt.Equal(rows[j].UploadedAt) {
			return rows[i].UploadedAt.After(rows[j].UploadedAt)
		}
		return rows[i].FileName < rows[j].FileName
	})
}

// UndoneFirst sorts rows lacking a completed status of the given kind before
// the rest, newest first within each group.
func UndoneFirst(rows []Row, kind string) {
	ByRecency(rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return !rows[i].Done(kind) && rows[j].Done(kind)
	})
}
