package drive

import (
	"log/slog"
	"time"
)

// Well-known identifiers and MIME types of the remote API.
const (
	// RootFolderID is the sentinel identifier for the root folder.
	// It never requires a remote lookup.
	RootFolderID = "root"

	// FolderMimeType marks an item as a folder.
	FolderMimeType = "application/vnd.google-apps.folder"
)

// Item represents a remote file or folder. Fields are normalized from
// the wire response; callers never see raw API data. Items are
// transient — the client keeps no cache of the remote tree.
type Item struct {
	ID          string
	Title       string
	MimeType    string
	Trashed     bool
	FileSize    int64
	MD5Checksum string
	ParentIDs   []string
	ModifiedAt  time.Time
	DownloadURL string // authenticated download locator; never logged
}

// IsFolder reports whether the item is a folder.
func (it *Item) IsFolder() bool {
	return it.MimeType == FolderMimeType
}

// ListOptions controls a listing request. The zero value requests a
// single page of server-default size with no filter.
type ListOptions struct {
	// MaxResults is the page size requested from the server.
	// 0 leaves the server default in place.
	MaxResults int

	// Query is a server-side filter in the API's q grammar,
	// e.g. `'root' in parents and title = 'reports'`.
	Query string

	// PageToken resumes listing from a previous page's continuation
	// token. Normally left empty.
	PageToken string

	// AllPages follows continuation tokens until the listing is
	// exhausted. When false only the first page is returned even if
	// more pages exist.
	AllPages bool
}

// Resolution is the result of a path walk: the identifier the full
// path resolved to and the identifier of the folder containing it.
// Callers that only need FolderID ignore ParentID.
type Resolution struct {
	FolderID string
	ParentID string
}

// itemResponse mirrors the wire JSON of a single item. Unexported —
// callers use Item via toItem() normalization.
type itemResponse struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	MimeType     string      `json:"mimeType"`
	Labels       *itemLabels `json:"labels"`
	FileSize     int64       `json:"fileSize,string"`
	MD5Checksum  string      `json:"md5Checksum"`
	ModifiedDate string      `json:"modifiedDate"`
	DownloadURL  string      `json:"downloadUrl"`
	Parents      []parentRef `json:"parents"`
}

type itemLabels struct {
	Trashed bool `json:"trashed"`
}

type parentRef struct {
	ID string `json:"id"`
}

type listResponse struct {
	Items         []itemResponse `json:"items"`
	NextPageToken string         `json:"nextPageToken"`
}

// toItem normalizes a wire item into our Item type.
func (r *itemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          r.ID,
		Title:       r.Title,
		MimeType:    r.MimeType,
		FileSize:    r.FileSize,
		MD5Checksum: r.MD5Checksum,
		DownloadURL: r.DownloadURL,
	}

	if r.Labels != nil {
		item.Trashed = r.Labels.Trashed
	}

	for _, p := range r.Parents {
		item.ParentIDs = append(item.ParentIDs, p.ID)
	}

	if r.ModifiedDate != "" {
		t, err := time.Parse(time.RFC3339, r.ModifiedDate)
		if err != nil {
			logger.Warn("invalid modifiedDate, leaving zero",
				slog.String("item_id", r.ID),
				slog.String("raw", r.ModifiedDate),
			)
		} else {
			item.ModifiedAt = t
		}
	}

	return item
}
