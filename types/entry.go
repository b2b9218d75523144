package types

import "time"

// EntryKind tells folders and files apart in a listing.
type EntryKind string

const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// FileEntry is one row of a directory listing. It mirrors live filesystem
// state and is never persisted. Folders carry a nil Size.
type FileEntry struct {
	Name         string     `json:"name"`
	Kind         EntryKind  `json:"kind"`
	Size         *int64     `json:"size,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}
