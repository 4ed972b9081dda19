// Package fetch optionally retrieves a recorded event, depth-snapshot, or
// latency-sample file over HTTP before handing its local path to the Event
// Reader, so an AssetConfig's file list can name either local paths or
// https:// archive URLs (SPEC_FULL.md §6).
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher downloads recorded data files named by URL to a local cache
// directory, retrying transient failures via resty.New()'s retry
// count/wait and a 5xx retry condition, applied here to a read-only GET
// rather than an authenticated order placement.
type Fetcher struct {
	http     *resty.Client
	cacheDir string
	limiter  *TokenBucket
}

// NewFetcher constructs a Fetcher that caches downloaded files under
// cacheDir, creating it if necessary. Downloads are throttled through a
// token bucket (burst 10, 5/sec refill) so a long reader-file list doesn't
// open a flood of concurrent requests against the archive host.
func NewFetcher(cacheDir string) *Fetcher {
	httpClient := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &Fetcher{http: httpClient, cacheDir: cacheDir, limiter: NewTokenBucket(10, 5)}
}

// ResolveFiles returns a local path for every entry in files: local paths
// pass through unchanged, and https:// (or http://) URLs are downloaded
// into the Fetcher's cache directory (skipped if already present), keyed by
// the URL's final path segment. Order is preserved.
func (f *Fetcher) ResolveFiles(files []string) ([]string, error) {
	resolved := make([]string, len(files))
	for i, name := range files {
		if !strings.HasPrefix(name, "http://") && !strings.HasPrefix(name, "https://") {
			resolved[i] = name
			continue
		}
		path, err := f.fetch(name)
		if err != nil {
			return nil, err
		}
		resolved[i] = path
	}
	return resolved, nil
}

func (f *Fetcher) fetch(url string) (string, error) {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: create cache dir: %w", err)
	}
	dest := filepath.Join(f.cacheDir, filepath.Base(url))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := f.limiter.Wait(context.Background()); err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	resp, err := f.http.R().SetOutput(dest).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		os.Remove(dest)
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}
	return dest, nil
}
