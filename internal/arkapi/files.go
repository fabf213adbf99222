package arkapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MaxPageSize is the largest page the files endpoint honors.
const MaxPageSize = 100

// maxPages bounds ListAll against a server that never reports a last page.
const maxPages = 10000

// File is one file or folder.
type File struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsDirectory bool   `json:"is_directory"`
	ParentID    *int64 `json:"parent_id"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
}

// AuthStatus is the auth status endpoint's payload.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email"`
}

// ListOptions selects one page of a folder listing. A nil ParentID lists
// the root.
type ListOptions struct {
	ParentID *int64
	Page     int
	Limit    int
}

// Health reports whether the health endpoint answers 2xx.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

// AuthStatus queries the auth status endpoint with the client's identity.
func (c *Client) AuthStatus(ctx context.Context) (*AuthStatus, error) {
	var st AuthStatus
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/auth/status", nil, &st); err != nil {
		return nil, err
	}

	return &st, nil
}

// ListFiles returns one page of a folder listing. Limits above
// MaxPageSize are clamped.
func (c *Client) ListFiles(ctx context.Context, opts ListOptions) ([]File, *Pagination, error) {
	q := url.Values{}

	if opts.ParentID != nil {
		q.Set("parent_id", strconv.FormatInt(*opts.ParentID, 10))
	}

	page := max(opts.Page, 1)
	q.Set("page", strconv.Itoa(page))

	limit := opts.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	q.Set("limit", strconv.Itoa(limit))

	var data struct {
		Files []File `json:"files"`
	}

	meta, err := c.doJSON(ctx, http.MethodGet, "/api/files?"+q.Encode(), nil, &data)
	if err != nil {
		return nil, nil, fmt.Errorf("listing files: %w", err)
	}

	var p *Pagination
	if meta != nil {
		p = meta.Pagination
	}

	return data.Files, p, nil
}

// ListAll returns every entry of a folder, following pagination.
func (c *Client) ListAll(ctx context.Context, parentID *int64) ([]File, error) {
	var all []File

	for page := 1; page <= maxPages; page++ {
		files, p, err := c.ListFiles(ctx, ListOptions{ParentID: parentID, Page: page, Limit: MaxPageSize})
		if err != nil {
			return nil, err
		}

		all = append(all, files...)

		if p == nil || page >= p.TotalPages || len(files) == 0 {
			return all, nil
		}
	}

	return nil, fmt.Errorf("arkapi: listing exceeded %d pages", maxPages)
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// CreateFolder creates a folder. An existing folder of the same name is
// reported as an *APIError wrapping ErrConflict.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID *int64) (*File, error) {
	var f File
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/folders", createFolderRequest{Name: name, ParentID: parentID}, &f); err != nil {
		return nil, fmt.Errorf("creating folder %q: %w", name, err)
	}

	f.IsDirectory = true

	return &f, nil
}

// IsConflict reports whether err means the resource already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
