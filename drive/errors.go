// Package drive provides a client for a Google Drive v2 style
// file-storage API: listing with pagination and trashed-item
// filtering, slash-path resolution to folder identifiers, folder
// creation, file upload and replacement, deletion, search, and
// content download. Authentication uses short-lived bearer tokens
// obtained through a signed-assertion exchange.
package drive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	// ErrAuthentication means the token exchange was rejected. It is
	// fatal: the data-plane retry loop never retries it.
	ErrAuthentication = errors.New("drive: authentication failed")

	// ErrInvalidArgument means a required parameter was missing or
	// malformed. Reported immediately, never retried.
	ErrInvalidArgument = errors.New("drive: invalid argument")

	// ErrNoDownloadURL is returned when an item carries no download
	// locator (folders and native documents have none).
	ErrNoDownloadURL = errors.New("drive: item has no download URL")

	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrRateLimited  = errors.New("drive: rate limited")
	ErrServerError  = errors.New("drive: server error")
)

// StatusError wraps a sentinel error with the HTTP status code and the
// remote error message body, for callers that need the detail.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// OrphanError reports a NewFile whose metadata insert succeeded but
// whose content upload failed. The metadata record remains on the
// remote side with no content; FileID lets the caller finish the
// upload with UpdateFile instead of creating a duplicate.
type OrphanError struct {
	FileID string
	Err    error
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("drive: content upload for new file %s failed (metadata record remains): %v", e.FileID, e.Err)
}

func (e *OrphanError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
