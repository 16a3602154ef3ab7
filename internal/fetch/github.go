// ABOUTME: GitHub release lookup and asset download for github_release resources
// ABOUTME: Compares the latest release tag against the cached one before downloading anything

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

type releaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Name    string         `json:"name"`
	Assets  []releaseAsset `json:"assets"`
}

// ReleaseResult is the outcome of a conditional release-asset fetch.
// When NotModified is true the cached copy matches the latest release.
type ReleaseResult struct {
	NotModified  bool
	Body         []byte
	GitTagName   string
	ReleaseTitle string
}

// FetchReleaseAsset looks up the latest release of user/repo and, unless
// its tag matches prevTag, downloads the named asset.
func (c *Client) FetchReleaseAsset(ctx context.Context, user, repo, assetName string, prevTag *string) (*ReleaseResult, error) {
	rel, err := c.latestRelease(ctx, user, repo)
	if err != nil {
		return nil, err
	}

	if prevTag != nil && rel.TagName == *prevTag {
		c.logger.Debug("release unchanged", "repo", user+"/"+repo, "tag", rel.TagName)
		return &ReleaseResult{NotModified: true, GitTagName: rel.TagName, ReleaseTitle: rel.Name}, nil
	}

	var asset *releaseAsset
	for i := range rel.Assets {
		if rel.Assets[i].Name == assetName {
			asset = &rel.Assets[i]
			break
		}
	}
	if asset == nil {
		return nil, fmt.Errorf("release %s of %s/%s has no asset named %q", rel.TagName, user, repo, assetName)
	}

	body, err := c.downloadAsset(ctx, asset.DownloadURL)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched release asset",
		"repo", user+"/"+repo, "tag", rel.TagName, "asset", assetName, "bytes", len(body))
	return &ReleaseResult{
		Body:         body,
		GitTagName:   rel.TagName,
		ReleaseTitle: rel.Name,
	}, nil
}

func (c *Client) latestRelease(ctx context.Context, user, repo string) (*release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.GitHubAPIBase, user, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying latest release of %s/%s: %w", user, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("querying latest release of %s/%s: unexpected status %s", user, repo, resp.Status)
	}

	var rel release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release metadata: %w", err)
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("release metadata for %s/%s has no tag name", user, repo)
	}
	return &rel, nil
}

func (c *Client) downloadAsset(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading asset: unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
