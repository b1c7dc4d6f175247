package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// Files lists items from the collection endpoint. opts.Query narrows
// the listing server-side; opts.AllPages follows continuation tokens
// until the listing is exhausted. Trashed items are filtered out
// unless the client is configured to show them.
func (c *Client) Files(ctx context.Context, opts ListOptions) ([]Item, error) {
	return c.list(ctx, c.baseURL+"/files", opts)
}

// Search lists items matching a caller-supplied query string.
func (c *Client) Search(ctx context.Context, query string, opts ListOptions) ([]Item, error) {
	if query == "" {
		return nil, fmt.Errorf("drive: empty search query: %w", ErrInvalidArgument)
	}

	opts.Query = query

	return c.list(ctx, c.baseURL+"/files", opts)
}

// RemoveTrashed returns the items whose trashed flag is not set.
// Idempotent: applying it to an already-filtered slice is a no-op.
func RemoveTrashed(items []Item) []Item {
	out := make([]Item, 0, len(items))

	for _, it := range items {
		if !it.Trashed {
			out = append(out, it)
		}
	}

	return out
}

// list is the paginated listing engine. It issues one request per
// page, accumulates normalized items in page order, and stops after
// the first page unless opts.AllPages is set. A failed page fetch
// surfaces the error with no partial results.
func (c *Client) list(ctx context.Context, base string, opts ListOptions) ([]Item, error) {
	var items []Item

	pageToken := opts.PageToken
	page := 1

	for {
		resp, err := c.doGet(ctx, listURL(base, opts, pageToken))
		if err != nil {
			return nil, err
		}

		var lr listResponse

		decErr := json.NewDecoder(resp.Body).Decode(&lr)
		resp.Body.Close()

		if decErr != nil {
			return nil, fmt.Errorf("drive: decoding listing response: %w", decErr)
		}

		for i := range lr.Items {
			items = append(items, lr.Items[i].toItem(c.logger))
		}

		c.logger.Debug("fetched listing page",
			slog.Int("page", page),
			slog.Int("count", len(lr.Items)),
		)

		if !opts.AllPages || lr.NextPageToken == "" {
			break
		}

		pageToken = lr.NextPageToken
		page++
	}

	if !c.trashedVisible() {
		items = RemoveTrashed(items)
	}

	return items, nil
}

// listURL assembles the listing URL for one page.
func listURL(base string, opts ListOptions, pageToken string) string {
	v := url.Values{}

	if opts.Query != "" {
		v.Set("q", opts.Query)
	}

	if opts.MaxResults > 0 {
		v.Set("maxResults", strconv.Itoa(opts.MaxResults))
	}

	if pageToken != "" {
		v.Set("pageToken", pageToken)
	}

	if len(v) == 0 {
		return base
	}

	return base + "?" + v.Encode()
}
