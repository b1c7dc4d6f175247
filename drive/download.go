package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// Download streams an item's content to w and returns the number of
// bytes written. Folders and native documents carry no download
// locator and fail with ErrNoDownloadURL.
func (c *Client) Download(ctx context.Context, item *Item, w io.Writer) (int64, error) {
	if item == nil {
		return 0, fmt.Errorf("drive: nil item: %w", ErrInvalidArgument)
	}

	if item.DownloadURL == "" {
		// Warn, not Error: expected for folders and native documents.
		c.logger.Warn("item has no download URL",
			slog.String("item_id", item.ID),
		)

		c.setLastError(ErrNoDownloadURL.Error())

		return 0, ErrNoDownloadURL
	}

	return c.DownloadFromURL(ctx, item.DownloadURL, w)
}

// DownloadFromURL streams content from a download locator to w.
// The response body is not JSON-decoded. The URL is never logged —
// download locators can embed credentials.
func (c *Client) DownloadFromURL(ctx context.Context, rawurl string, w io.Writer) (int64, error) {
	if rawurl == "" {
		return 0, fmt.Errorf("drive: empty download URL: %w", ErrInvalidArgument)
	}

	resp, err := c.doRetry(ctx, http.MethodGet, rawurl, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		c.setLastError(copyErr.Error())

		return n, fmt.Errorf("drive: streaming download content: %w", copyErr)
	}

	c.logger.Debug("download complete",
		slog.Int64("bytes_written", n),
	)

	return n, nil
}

// DownloadToFile streams an item's content into a local file, creating
// or truncating it. The partial file is removed on failure.
func (c *Client) DownloadToFile(ctx context.Context, item *Item, localPath string) (int64, error) {
	if localPath == "" {
		return 0, fmt.Errorf("drive: empty local path: %w", ErrInvalidArgument)
	}

	f, err := os.Create(localPath)
	if err != nil {
		c.setLastError(err.Error())
		return 0, fmt.Errorf("drive: creating %s: %w", localPath, err)
	}

	n, err := c.Download(ctx, item, f)

	closeErr := f.Close()

	if err != nil {
		os.Remove(localPath)
		return n, err
	}

	if closeErr != nil {
		return n, fmt.Errorf("drive: closing %s: %w", localPath, closeErr)
	}

	return n, nil
}
