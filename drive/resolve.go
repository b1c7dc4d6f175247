package drive

import (
	"context"
	"fmt"
	"strings"
)

// lookupPageSize is the maxResults value for per-segment lookups.
// Segment lookups are already narrowed by a title filter, so a small
// page suffices.
const lookupPageSize = 100

// Resolve walks a slash-delimited path left to right, resolving each
// segment to a folder identifier with one scoped listing call. The
// path root is the "root" sentinel and needs no lookup; "/" resolves
// with zero remote calls. The first segment with no exact
// (case-sensitive) title match aborts the walk with ErrNotFound and
// last-error "Child <segment> not found"; later segments are never
// attempted.
//
// Caveat: the service does not guarantee unique titles under a folder.
// When duplicates exist, the first match in the order the service
// returns the page wins.
func (c *Client) Resolve(ctx context.Context, path string) (*Resolution, error) {
	if path == "" {
		return nil, fmt.Errorf("drive: empty path: %w", ErrInvalidArgument)
	}

	current := RootFolderID
	parent := RootFolderID

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			// Leading slash or doubled separator.
			continue
		}

		items, err := c.childrenByTitle(ctx, current, segment)
		if err != nil {
			return nil, err
		}

		match := ""

		for _, it := range items {
			if it.Title == segment {
				match = it.ID
				break
			}
		}

		if match == "" {
			msg := fmt.Sprintf("Child %s not found", segment)
			c.setLastError(msg)

			return nil, fmt.Errorf("drive: %s: %w", msg, ErrNotFound)
		}

		parent = current
		current = match
	}

	return &Resolution{FolderID: current, ParentID: parent}, nil
}

// Children lists the items under the folder named by a slash path.
func (c *Client) Children(ctx context.Context, path string, opts ListOptions) ([]Item, error) {
	res, err := c.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	return c.ChildrenByFolderID(ctx, res.FolderID, "", opts)
}

// ChildrenByFolderID lists the children of a folder identifier,
// optionally narrowed server-side to an exact title. Any opts.Query
// is ANDed onto the parent/title filter.
func (c *Client) ChildrenByFolderID(ctx context.Context, folderID, title string, opts ListOptions) ([]Item, error) {
	if folderID == "" {
		return nil, fmt.Errorf("drive: empty folder id: %w", ErrInvalidArgument)
	}

	q := quoteQueryValue(folderID) + " in parents"

	if title != "" {
		q += " and title = " + quoteQueryValue(title)
	}

	if opts.Query != "" {
		q += " and " + opts.Query
	}

	opts.Query = q

	return c.list(ctx, c.baseURL+"/files", opts)
}

// childrenByTitle is the resolver's lookup step: children of folderID
// whose title equals title, first page only.
func (c *Client) childrenByTitle(ctx context.Context, folderID, title string) ([]Item, error) {
	q := fmt.Sprintf("%s in parents and title = %s",
		quoteQueryValue(folderID), quoteQueryValue(title))

	return c.list(ctx, c.baseURL+"/files", ListOptions{
		Query:      q,
		MaxResults: lookupPageSize,
	})
}

// quoteQueryValue single-quotes a value for the q filter grammar,
// escaping embedded backslashes and quotes.
func quoteQueryValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)

	return "'" + s + "'"
}
