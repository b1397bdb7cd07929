package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/staticql/staticql/internal/staticqlerr"
)

// HTTPFetch is a read-only Repository for browser/remote targets that can
// fetch individual files over HTTP but cannot enumerate a bucket listing.
// Every path is fetched as baseURL + "/" + path. SetResolver stores the
// resolver but no method reads it, so it does not change which URL is
// requested and does not make ListFiles succeed.
type HTTPFetch struct {
	baseURL  string
	client   *http.Client
	resolver ConfigResolver
}

// NewHTTPFetch creates a fetch-only repository rooted at baseURL.
func NewHTTPFetch(baseURL string) *HTTPFetch {
	return &HTTPFetch{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPFetch) SetResolver(resolver ConfigResolver) { h.resolver = resolver }

// ListFiles is unsupported: HTTPFetch has no bucket-listing capability. The
// query planner must avoid calling it (it never enumerates shard
// directories blindly; it always requests a specific path).
func (h *HTTPFetch) ListFiles(context.Context, string) ([]string, error) {
	return nil, &staticqlerr.IOError{Op: "list", Path: h.baseURL, Err: fmt.Errorf("listing unsupported over HTTP fetch; configure a resolver and request paths directly")}
}

func (h *HTTPFetch) url(path string) string {
	return h.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (h *HTTPFetch) ReadFile(ctx context.Context, path string) ([]byte, error) {
	rc, err := h.OpenFileStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &staticqlerr.IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func (h *HTTPFetch) OpenFileStream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url(path), nil)
	if err != nil {
		return nil, &staticqlerr.IOError{Op: "open", Path: path, Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &staticqlerr.IOError{Op: "open", Path: path, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &staticqlerr.IOError{Op: "open", Path: path, Err: fmt.Errorf("not found")}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &staticqlerr.IOError{Op: "open", Path: path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return resp.Body, nil
}

func (h *HTTPFetch) Exists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url(path), nil)
	if err != nil {
		return false, &staticqlerr.IOError{Op: "stat", Path: path, Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, &staticqlerr.IOError{Op: "stat", Path: path, Err: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// WriteFile, RemoveFile, and RemoveDir are unsupported: HTTPFetch is a
// read-only frontend for deployed index bundles.
func (h *HTTPFetch) WriteFile(context.Context, string, []byte) error {
	return &staticqlerr.IOError{Op: "write", Path: h.baseURL, Err: fmt.Errorf("HTTPFetch is read-only")}
}

func (h *HTTPFetch) RemoveFile(context.Context, string) error {
	return &staticqlerr.IOError{Op: "remove", Path: h.baseURL, Err: fmt.Errorf("HTTPFetch is read-only")}
}

func (h *HTTPFetch) RemoveDir(context.Context, string) error {
	return &staticqlerr.IOError{Op: "removeDir", Path: h.baseURL, Err: fmt.Errorf("HTTPFetch is read-only")}
}
