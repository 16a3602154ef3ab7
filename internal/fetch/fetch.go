// ABOUTME: Conditional HTTP retrieval for URL-origin resources and subscriptions
// ABOUTME: Sends cached validators and reports fresh ones so unchanged payloads are never re-downloaded

package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Validators are the cached conditional-request inputs for a URL origin.
type Validators struct {
	ETag         *string
	LastModified *string
}

// Usage is the quota/expiry information a subscription endpoint reports
// through the Subscription-Userinfo response header. Fields the endpoint
// omits stay nil.
type Usage struct {
	UploadBytesUsed   *uint64
	DownloadBytesUsed *uint64
	BytesTotal        *uint64
	ExpiresAt         *time.Time
}

// Result is the outcome of a conditional fetch. When NotModified is true
// the body is empty and the cached copy is still current.
type Result struct {
	NotModified bool
	Body        []byte
	Validators  Validators
	Usage       *Usage
}

// Client performs the network retrieval the store itself never does.
type Client struct {
	http   *http.Client
	logger *slog.Logger

	// GitHubAPIBase overrides the GitHub API endpoint, for tests.
	GitHubAPIBase string
}

// NewClient creates a fetch client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:          &http.Client{Timeout: timeout},
		logger:        slog.Default().With("component", "fetch"),
		GitHubAPIBase: "https://api.github.com",
	}
}

// maxBodySize caps fetched payloads; subscription documents and rulesets
// are small.
const maxBodySize = 32 << 20

// FetchURL retrieves a URL conditionally. The previous validators, if
// any, are sent as If-None-Match / If-Modified-Since; a 304 response
// short-circuits with NotModified and no body.
func (c *Client) FetchURL(ctx context.Context, url string, prev Validators) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if prev.ETag != nil {
		req.Header.Set("If-None-Match", *prev.ETag)
	}
	if prev.LastModified != nil {
		req.Header.Set("If-Modified-Since", *prev.LastModified)
	}
	// Decode gzip ourselves so validators stay those of the encoded
	// representation the server cached.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		c.logger.Debug("not modified", "url", url)
		return &Result{NotModified: true, Validators: prev}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	var reader io.Reader = io.LimitReader(resp.Body, maxBodySize)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	res := &Result{
		Body:       body,
		Validators: responseValidators(resp.Header),
		Usage:      parseSubscriptionUserinfo(resp.Header.Get("Subscription-Userinfo")),
	}
	c.logger.Debug("fetched", "url", url, "bytes", len(body))
	return res, nil
}

func responseValidators(h http.Header) Validators {
	var v Validators
	if etag := h.Get("ETag"); etag != "" {
		v.ETag = &etag
	}
	if lm := h.Get("Last-Modified"); lm != "" {
		v.LastModified = &lm
	}
	return v
}

// parseSubscriptionUserinfo parses the de-facto standard header
// "upload=123; download=456; total=789; expire=1700000000". Unknown or
// malformed fields are skipped; a missing header yields nil.
func parseSubscriptionUserinfo(header string) *Usage {
	if header == "" {
		return nil
	}

	var usage Usage
	seen := false
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "upload", "download", "total":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				continue
			}
			seen = true
			switch key {
			case "upload":
				usage.UploadBytesUsed = &n
			case "download":
				usage.DownloadBytesUsed = &n
			case "total":
				usage.BytesTotal = &n
			}
		case "expire":
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil || secs <= 0 {
				continue
			}
			t := time.Unix(secs, 0).UTC()
			usage.ExpiresAt = &t
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &usage
}
