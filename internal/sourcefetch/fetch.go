// Package sourcefetch retrieves the original audio bytes a pipeline build
// needs: either an external URL or an object already sitting in the source
// storage backend, whichever the source key identifies.
//
// Grounded on the musicbrainz client's context-aware, timeout-bound HTTP
// idiom (alexander-bruun-Orb's pkg/musicbrainz/client.go), stripped of its
// rate limiting since the system this client talks to is arbitrary origin
// media hosts, not a single shared API.
package sourcefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonaylor89/freqmoda/internal/apperr"
	"github.com/jonaylor89/freqmoda/pkg/objstore"
)

// ErrSourceNotFound is returned when the upstream responds 404 or the
// storage backend has no such key.
var ErrSourceNotFound = errors.New("sourcefetch: source not found")

// Fetcher resolves a source key to bytes, either via HTTP or via an
// internal storage backend.
type Fetcher struct {
	http  *http.Client
	store objstore.Store
}

// New builds a Fetcher with the given per-request timeout.
func New(timeout time.Duration, store objstore.Store) *Fetcher {
	return &Fetcher{
		http:  &http.Client{Timeout: timeout},
		store: store,
	}
}

// Fetch returns the raw source bytes for key. A key that parses as an
// absolute http(s) URL is fetched externally; anything else is looked up in
// the storage backend the Fetcher was built with, at the key's own unsharded
// path.
func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	if u, ok := parseAbsoluteHTTPURL(key); ok {
		return f.fetchHTTP(ctx, u)
	}
	return f.fetchStored(ctx, key)
}

func parseAbsoluteHTTPURL(key string) (*url.URL, bool) {
	u, err := url.Parse(key)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.New(apperr.KindBadRequest, fmt.Errorf("sourcefetch: build request: %w", err))
	}
	req.Header.Set("User-Agent", "freqmoda/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.New(apperr.KindTimeout, fmt.Errorf("sourcefetch: fetch %s: %w", u, ctx.Err()))
		}
		return nil, apperr.Backend("fetch source", "http_do", fmt.Errorf("sourcefetch: fetch %s: %w", u, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrSourceNotFound, u))
	case resp.StatusCode >= 500:
		return nil, apperr.Backend("fetch source", fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("sourcefetch: upstream %d for %s", resp.StatusCode, u))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apperr.New(apperr.KindBadRequest, fmt.Errorf("sourcefetch: upstream %d for %s", resp.StatusCode, u))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Backend("fetch source", "read_body", fmt.Errorf("sourcefetch: read %s: %w", u, err))
	}
	return data, nil
}

func (f *Fetcher) fetchStored(ctx context.Context, key string) ([]byte, error) {
	data, err := f.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrSourceNotFound, key))
		}
		return nil, apperr.New(apperr.KindStorageTransient, fmt.Errorf("sourcefetch: stored lookup %s: %w", key, err))
	}
	return data, nil
}
