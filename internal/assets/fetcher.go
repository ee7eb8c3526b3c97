package assets

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"eyewear-tryon/internal/errs"
)

// Fetcher retrieves the raw bytes of an asset. Implementations must be safe
// for concurrent use and must honor ctx cancellation. Returned slices may be
// shared and must not be modified.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// FileFetcher reads assets from the local filesystem. Relative paths are
// resolved against Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, raw string) ([]byte, error) {
	const op = "assets.file"
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.FetchError, op, err, raw)
	}
	p := raw
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, errs.Wrap(errs.FetchError, op, err, "bad file URL")
		}
		p = u.Path
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errs.Wrap(errs.FetchError, op, err, "read "+p)
	}
	return data, nil
}

// DefaultMaxBytes caps HTTP downloads.
const DefaultMaxBytes = 64 << 20

// HTTPFetcher downloads assets over HTTP(S).
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, MaxBytes: DefaultMaxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, raw string) ([]byte, error) {
	const op = "assets.http"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, errs.Wrap(errs.FetchError, op, err, "build request")
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.FetchError, op, err, "GET "+raw)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Newf(errs.FetchError, op, "GET %s: %s", raw, resp.Status)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errs.Wrap(errs.FetchError, op, err, "read body")
	}
	if int64(len(data)) > limit {
		return nil, errs.Newf(errs.FetchError, op, "%s is larger than %d bytes", raw, limit)
	}
	return data, nil
}

// Router dispatches on the URL scheme. URLs without a scheme go to the
// "file" fetcher.
type Router struct {
	schemes map[string]Fetcher
}

// NewRouter returns a router serving local paths and http(s) URLs.
func NewRouter(root string, timeout time.Duration) *Router {
	h := NewHTTPFetcher(timeout)
	return &Router{schemes: map[string]Fetcher{
		"file":  FileFetcher{Root: root},
		"http":  h,
		"https": h,
	}}
}

// Handle registers f for scheme, replacing any previous fetcher.
func (r *Router) Handle(scheme string, f Fetcher) {
	if r.schemes == nil {
		r.schemes = make(map[string]Fetcher)
	}
	r.schemes[strings.ToLower(scheme)] = f
}

func (r *Router) Fetch(ctx context.Context, raw string) ([]byte, error) {
	scheme := "file"
	if u, err := url.Parse(raw); err == nil && len(u.Scheme) > 1 {
		// Single letters are Windows drive names.
		scheme = strings.ToLower(u.Scheme)
	}
	f, ok := r.schemes[scheme]
	if !ok {
		return nil, errs.Newf(errs.FetchError, "assets.route", "no fetcher for scheme %q", scheme)
	}
	return f.Fetch(ctx, raw)
}

// Resolve interprets ref relative to the asset at base, the way a browser
// resolves a link. Absolute refs and refs with a scheme are returned as is.
func Resolve(base, ref string) string {
	ref = strings.ReplaceAll(ref, "\\", "/")
	if ref == "" {
		return base
	}
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return ref
	}
	if b, err := url.Parse(base); err == nil && len(b.Scheme) > 1 {
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	return path.Join(path.Dir(filepath.ToSlash(base)), ref)
}
