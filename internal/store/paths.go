package store

import (
	"fmt"
	"sort"
	"strings"
)

// Status kinds. Each kind has its own collection of status records.
const (
	StatusRead     = "read"
	StatusApproval = "approval"
)

// Top-level collection names.
const (
	colCustomers = "customers"
	colProjects  = "projects"
	colFiles     = "files"
	colStatuses  = "statuses"
	colUsers     = "users"
	colSessions  = "refreshSessions"
	colRevoked   = "revokedTokens"
)

// FolderKey flattens folder path segments into a single collection segment,
// because slashes are path separators in document paths. "Reports/Inspection"
// becomes "Reports__Inspection".
func FolderKey(segments []string) string {
	return strings.Join(segments, "__")
}

// SplitFolderKey is the inverse of FolderKey.
func SplitFolderKey(key string) []string {
	return strings.Split(key, "__")
}

// FileKey builds the status document ID for a file: the file path
// {projectID}/{folderKey}/{fileName} with every "/" replaced by "__".
// The ID is deterministic, so each file path has at most one status
// document per kind.
func FileKey(projectID, folderKey, fileName string) string {
	path := projectID + "/" + folderKey + "/" + fileName
	return strings.ReplaceAll(path, "/", "__")
}

// ObjectKey is the blob object name for a file: the slash form of the same
// path, folder segments included.
func ObjectKey(projectID, folderKey, fileName string) string {
	return projectID + "/" + strings.ReplaceAll(folderKey, "__", "/") + "/" + fileName
}

// DecodeFileKey splits an encoded file key back into its parts. The folder
// portion is ambiguous on its own (folder keys contain the same "__"
// separator), so decoding matches against the caller's known folder keys,
// longest first. Keys that do not parse wrap ErrNotFound.
func DecodeFileKey(key string, folderKeys []string) (projectID, folderKey, fileName string, err error) {
	projectID, rest, ok := strings.Cut(key, "__")
	if !ok || projectID == "" {
		return "", "", "", fmt.Errorf("file key %q: %w", key, ErrNotFound)
	}
	sorted := make([]string, len(folderKeys))
	copy(sorted, folderKeys)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, fk := range sorted {
		if name, ok := strings.CutPrefix(rest, fk+"__"); ok && name != "" {
			return projectID, fk, name, nil
		}
	}
	return "", "", "", fmt.Errorf("file key %q: %w", key, ErrNotFound)
}
