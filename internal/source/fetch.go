package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// blockedSchemes are rejected outright, never fetched.
var blockedSchemes = map[string]bool{
	"file":       true,
	"ftp":        true,
	"javascript": true,
	"data":       true,
}

const maxRedirects = 5

// Fetcher downloads archive URLs into extracted working directories.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher builds a Fetcher whose redirect policy re-validates every
// hop against the scheme and host rules of the in-flight request.
func NewFetcher(logger *slog.Logger) *Fetcher {
	f := &Fetcher{logger: logger}
	f.client = &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return paccerr.Source("unreachable", "more than %d redirects", maxRedirects)
			}
			opts, _ := req.Context().Value(fetchOptsKey{}).(Options)
			return checkURL(req.URL, opts)
		},
	}
	return f
}

type fetchOptsKey struct{}

// checkURL enforces the scheme allow-list and host allow/block lists.
func checkURL(u *url.URL, opts Options) error {
	scheme := strings.ToLower(u.Scheme)
	if blockedSchemes[scheme] {
		return paccerr.Security("scheme_blocked", "scheme %q is not allowed", scheme)
	}
	if scheme != "http" && scheme != "https" {
		return paccerr.Security("scheme_blocked", "scheme %q is not allowed", scheme)
	}

	host := strings.ToLower(u.Hostname())
	for _, blocked := range opts.BlockedHosts {
		if strings.EqualFold(host, blocked) {
			return paccerr.Security("domain_blocked", "host %q is blocked", host)
		}
	}
	if len(opts.AllowedHosts) > 0 {
		allowed := false
		for _, a := range opts.AllowedHosts {
			if strings.EqualFold(host, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return paccerr.Security("domain_blocked", "host %q is not on the allow list", host)
		}
	}
	return nil
}

// FetchArchive downloads rawURL, extracts it, and returns the extraction
// root as the working directory.
func (f *Fetcher) FetchArchive(ctx context.Context, rawURL string, opts Options) (*Resolved, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, paccerr.Source("unrecognized", "parsing URL %q", rawURL).WithCause(err)
	}
	if err := checkURL(u, opts); err != nil {
		return nil, err
	}
	suffix := ArchiveSuffix(u.Path)
	if suffix == "" {
		return nil, paccerr.Source("unrecognized", "%s is not a recognized archive", path.Base(u.Path))
	}

	archivePath, size, err := f.download(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	defer os.Remove(archivePath)

	dir, err := Extract(archivePath, suffix)
	if err != nil {
		return nil, err
	}

	logger := f.logger
	return &Resolved{
		Kind:       KindURL,
		WorkingDir: dir,
		Metadata:   Metadata{Ref: rawURL, URL: rawURL, SizeBytes: size},
		cleanup:    func() error { return os.RemoveAll(dir) },
		logger:     logger,
	}, nil
}

// download streams the response body to a temp file, failing the moment
// the declared or observed size exceeds the cap. Transient network
// failures get one retry.
func (f *Fetcher) download(ctx context.Context, rawURL string, opts Options) (string, int64, error) {
	p, n, err := f.downloadOnce(ctx, rawURL, opts)
	if err == nil || ctx.Err() != nil || !retryable(err) {
		return p, n, err
	}
	f.logger.Debug("retrying download", "url", rawURL, "error", err)
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return "", 0, timeoutError(ctx, rawURL)
	}
	return f.downloadOnce(ctx, rawURL, opts)
}

func retryable(err error) bool {
	return paccerr.IsKind(err, paccerr.KindNetwork)
}

func timeoutError(ctx context.Context, rawURL string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return paccerr.Timeout("deadline", "fetching %s timed out", rawURL)
	}
	return paccerr.Network("canceled", "fetching %s canceled", rawURL)
}

func (f *Fetcher) downloadOnce(ctx context.Context, rawURL string, opts Options) (string, int64, error) {
	ctx = context.WithValue(ctx, fetchOptsKey{}, opts)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, paccerr.Source("unrecognized", "building request for %s", rawURL).WithCause(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, timeoutError(ctx, rawURL)
		}
		// Redirect policy errors come back wrapped in *url.Error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			if inner := uerr.Unwrap(); inner != nil && (paccerr.IsKind(inner, paccerr.KindSecurity) || paccerr.IsKind(inner, paccerr.KindSource)) {
				return "", 0, inner
			}
		}
		return "", 0, paccerr.Network("unreachable", "fetching %s", rawURL).WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", 0, paccerr.Source("auth_required", "%s returned HTTP %d", rawURL, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", 0, paccerr.Source("unreachable", "%s returned HTTP %d", rawURL, resp.StatusCode)
	}

	maxSize := opts.maxSize()
	if resp.ContentLength > 0 && resp.ContentLength > maxSize {
		return "", 0, paccerr.Source("size_exceeded",
			"declared size %d exceeds limit %d", resp.ContentLength, maxSize)
	}

	tmp, err := os.CreateTemp("", "pacc-download-*")
	if err != nil {
		return "", 0, paccerr.Filesystem("io", "creating temp file").WithCause(err)
	}
	written, err := io.Copy(tmp, io.LimitReader(resp.Body, maxSize+1))
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())
		if ctx.Err() != nil {
			return "", 0, timeoutError(ctx, rawURL)
		}
		return "", 0, paccerr.Network("unreachable", "downloading %s", rawURL).WithCause(err)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return "", 0, paccerr.Filesystem("io", "writing temp file").WithCause(closeErr)
	}
	if written > maxSize {
		os.Remove(tmp.Name())
		return "", 0, paccerr.Source("size_exceeded", "download exceeds limit %d", maxSize)
	}
	return tmp.Name(), written, nil
}
