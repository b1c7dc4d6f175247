package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// octetStream is the fallback content type when sniffing fails.
const octetStream = "application/octet-stream"

// FileOptions supplies optional metadata for NewFile. The zero value
// derives the title from the local file name and sniffs the MIME type
// from content.
type FileOptions struct {
	// Title overrides the title derived from the local file name.
	Title string

	// MimeType overrides content sniffing.
	MimeType string

	// Metadata is merged into the insert request. Caller keys win
	// over the computed title, mimeType, and parents fields.
	Metadata map[string]any
}

// CreateFolder creates a folder under parentID (the root when empty)
// with a single metadata insert. Not idempotent: a retried call after
// a timeout can create a duplicate folder — the remote API has no
// idempotency keys.
func (c *Client) CreateFolder(ctx context.Context, title, parentID string) (*Item, error) {
	if title == "" {
		return nil, fmt.Errorf("drive: empty folder title: %w", ErrInvalidArgument)
	}

	if parentID == "" {
		parentID = RootFolderID
	}

	c.logger.Info("creating folder",
		slog.String("title", title),
		slog.String("parent_id", parentID),
	)

	body := map[string]any{
		"title":    title,
		"mimeType": FolderMimeType,
		"parents":  []parentRef{{ID: parentID}},
	}

	resp, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/files", body)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp)
}

// NewFile uploads a local file in two phases: a metadata insert that
// allocates the identifier, then a content upload against it. The two
// phases are not atomic — when the upload fails, the metadata record
// remains with no content and the returned *OrphanError carries its
// identifier so the caller can finish with UpdateFile. A missing or
// unreadable local file fails before any network call.
func (c *Client) NewFile(ctx context.Context, localPath, parentID string, opts *FileOptions) (*Item, error) {
	if localPath == "" {
		return nil, fmt.Errorf("drive: empty local path: %w", ErrInvalidArgument)
	}

	if opts == nil {
		opts = &FileOptions{}
	}

	st, err := os.Stat(localPath)
	if err != nil {
		c.setLastError(err.Error())
		return nil, fmt.Errorf("drive: reading %s: %w", localPath, err)
	}

	if st.IsDir() {
		return nil, fmt.Errorf("drive: %s is a directory: %w", localPath, ErrInvalidArgument)
	}

	title := opts.Title
	if title == "" {
		title = filepath.Base(localPath)
	}

	contentType := opts.MimeType
	if contentType == "" {
		contentType = detectMimeType(localPath)
	}

	if parentID == "" {
		parentID = RootFolderID
	}

	c.logger.Info("inserting file metadata",
		slog.String("title", title),
		slog.String("parent_id", parentID),
		slog.String("mime_type", contentType),
		slog.Int64("size", st.Size()),
	)

	body := map[string]any{
		"title":    title,
		"mimeType": contentType,
		"parents":  []parentRef{{ID: parentID}},
	}

	for k, v := range opts.Metadata {
		body[k] = v
	}

	resp, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/files", body)
	if err != nil {
		return nil, err
	}

	inserted, err := c.decodeItem(resp)
	if err != nil {
		return nil, err
	}

	uploaded, err := c.uploadContent(ctx, inserted.ID, localPath, contentType)
	if err != nil {
		orphan := &OrphanError{FileID: inserted.ID, Err: err}
		c.setLastError(orphan.Error())

		return nil, orphan
	}

	return uploaded, nil
}

// UpdateFile replaces the content of an existing file. The access
// token is proactively refreshed first: uploads are assumed
// long-running and must not start with a token expiring mid-transfer.
func (c *Client) UpdateFile(ctx context.Context, fileID, localPath string) (*Item, error) {
	if fileID == "" {
		return nil, fmt.Errorf("drive: empty file id: %w", ErrInvalidArgument)
	}

	if localPath == "" {
		return nil, fmt.Errorf("drive: empty local path: %w", ErrInvalidArgument)
	}

	if _, err := os.Stat(localPath); err != nil {
		c.setLastError(err.Error())
		return nil, fmt.Errorf("drive: reading %s: %w", localPath, err)
	}

	c.logger.Info("replacing file content",
		slog.String("file_id", fileID),
		slog.String("local_path", localPath),
	)

	c.ForceTokenExpiry()

	return c.uploadContent(ctx, fileID, localPath, detectMimeType(localPath))
}

// Delete removes an item and returns its identifier on success.
func (c *Client) Delete(ctx context.Context, itemID string) (string, error) {
	if itemID == "" {
		return "", fmt.Errorf("drive: empty item id: %w", ErrInvalidArgument)
	}

	c.logger.Info("deleting item",
		slog.String("item_id", itemID),
	)

	u := c.baseURL + "/files/" + url.PathEscape(itemID)

	resp, err := c.doRetry(ctx, http.MethodDelete, u, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	})
	if err != nil {
		return "", err
	}

	// Usually 204 No Content — drain and close to reuse the connection.
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return "", fmt.Errorf("drive: draining delete response body: %w", copyErr)
	}

	return itemID, nil
}

// Metadata fetches a single item by identifier.
func (c *Client) Metadata(ctx context.Context, fileID string) (*Item, error) {
	if fileID == "" {
		return nil, fmt.Errorf("drive: empty file id: %w", ErrInvalidArgument)
	}

	resp, err := c.doGet(ctx, c.baseURL+"/files/"+url.PathEscape(fileID))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp)
}

// uploadContent replaces the content of fileID with the local file via
// the upload endpoint. The file is reopened per attempt so a retried
// request never resends a partially consumed body.
func (c *Client) uploadContent(ctx context.Context, fileID, localPath, contentType string) (*Item, error) {
	u := fmt.Sprintf("%s/files/%s?uploadType=media", c.uploadURL, url.PathEscape(fileID))

	resp, err := c.doRetry(ctx, http.MethodPut, u, func() (*http.Request, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", localPath, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, f)
		if err != nil {
			f.Close()
			return nil, err
		}

		req.Header.Set("Content-Type", contentType)

		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp)
}

// detectMimeType sniffs a file's content type, falling back to
// application/octet-stream when sniffing fails.
func detectMimeType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return octetStream
	}

	return mt.String()
}
