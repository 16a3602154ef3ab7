// ABOUTME: Tests for conditional URL fetching, gzip decoding, and userinfo parsing
// ABOUTME: Uses httptest servers so no real network access is required

package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchURL_FirstFetchCapturesValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		assert.Empty(t, r.Header.Get("If-Modified-Since"))
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	res, err := c.FetchURL(context.Background(), srv.URL, Validators{})
	require.NoError(t, err)

	assert.False(t, res.NotModified)
	assert.Equal(t, []byte("payload"), res.Body)
	require.NotNil(t, res.Validators.ETag)
	assert.Equal(t, `"v1"`, *res.Validators.ETag)
	require.NotNil(t, res.Validators.LastModified)
	assert.Equal(t, "Wed, 01 Jan 2025 00:00:00 GMT", *res.Validators.LastModified)
}

func TestFetchURL_SendsValidatorsAndHandles304(t *testing.T) {
	etag := `"v1"`
	lastModified := "Wed, 01 Jan 2025 00:00:00 GMT"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, etag, r.Header.Get("If-None-Match"))
		assert.Equal(t, lastModified, r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	res, err := c.FetchURL(context.Background(), srv.URL, Validators{ETag: &etag, LastModified: &lastModified})
	require.NoError(t, err)

	assert.True(t, res.NotModified)
	assert.Empty(t, res.Body)
	require.NotNil(t, res.Validators.ETag)
	assert.Equal(t, etag, *res.Validators.ETag)
}

func TestFetchURL_DecodesGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte("compressed payload"))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	res, err := c.FetchURL(context.Background(), srv.URL, Validators{})
	require.NoError(t, err)
	assert.Equal(t, []byte("compressed payload"), res.Body)
}

func TestFetchURL_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.FetchURL(context.Background(), srv.URL, Validators{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestFetchURL_ParsesSubscriptionUserinfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Subscription-Userinfo", "upload=123; download=456; total=1073741824; expire=1767225600")
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	res, err := c.FetchURL(context.Background(), srv.URL, Validators{})
	require.NoError(t, err)

	require.NotNil(t, res.Usage)
	require.NotNil(t, res.Usage.UploadBytesUsed)
	assert.Equal(t, uint64(123), *res.Usage.UploadBytesUsed)
	require.NotNil(t, res.Usage.DownloadBytesUsed)
	assert.Equal(t, uint64(456), *res.Usage.DownloadBytesUsed)
	require.NotNil(t, res.Usage.BytesTotal)
	assert.Equal(t, uint64(1073741824), *res.Usage.BytesTotal)
	require.NotNil(t, res.Usage.ExpiresAt)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), *res.Usage.ExpiresAt)
}

func TestParseSubscriptionUserinfo(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   func(t *testing.T, u *Usage)
	}{
		{
			name:   "empty header",
			header: "",
			want: func(t *testing.T, u *Usage) {
				assert.Nil(t, u)
			},
		},
		{
			name:   "partial fields",
			header: "download=99",
			want: func(t *testing.T, u *Usage) {
				require.NotNil(t, u)
				require.NotNil(t, u.DownloadBytesUsed)
				assert.Equal(t, uint64(99), *u.DownloadBytesUsed)
				assert.Nil(t, u.UploadBytesUsed)
				assert.Nil(t, u.BytesTotal)
				assert.Nil(t, u.ExpiresAt)
			},
		},
		{
			name:   "malformed values skipped",
			header: "upload=abc; total=100",
			want: func(t *testing.T, u *Usage) {
				require.NotNil(t, u)
				assert.Nil(t, u.UploadBytesUsed)
				require.NotNil(t, u.BytesTotal)
				assert.Equal(t, uint64(100), *u.BytesTotal)
			},
		},
		{
			name:   "all fields malformed",
			header: "upload=; nonsense",
			want: func(t *testing.T, u *Usage) {
				assert.Nil(t, u)
			},
		},
		{
			name:   "zero expire ignored",
			header: "expire=0; total=10",
			want: func(t *testing.T, u *Usage) {
				require.NotNil(t, u)
				assert.Nil(t, u.ExpiresAt)
				require.NotNil(t, u.BytesTotal)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, parseSubscriptionUserinfo(tt.header))
		})
	}
}

func TestFetchReleaseAsset_DownloadsNewRelease(t *testing.T) {
	var assetURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/rules/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v2.0.0","name":"Release 2.0","assets":[{"name":"rules.dat","browser_download_url":"` + assetURL + `"}]}`))
	})
	mux.HandleFunc("/assets/rules.dat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ruleset contents"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	assetURL = srv.URL + "/assets/rules.dat"

	c := NewClient(5 * time.Second)
	c.GitHubAPIBase = srv.URL

	prevTag := "v1.0.0"
	res, err := c.FetchReleaseAsset(context.Background(), "acme", "rules", "rules.dat", &prevTag)
	require.NoError(t, err)

	assert.False(t, res.NotModified)
	assert.Equal(t, []byte("ruleset contents"), res.Body)
	assert.Equal(t, "v2.0.0", res.GitTagName)
	assert.Equal(t, "Release 2.0", res.ReleaseTitle)
}

func TestFetchReleaseAsset_UnchangedTagSkipsDownload(t *testing.T) {
	downloads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/rules/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v1.0.0","name":"Release 1.0","assets":[{"name":"rules.dat","browser_download_url":"http://invalid.test/never"}]}`))
	})
	mux.HandleFunc("/assets/", func(w http.ResponseWriter, r *http.Request) {
		downloads++
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(5 * time.Second)
	c.GitHubAPIBase = srv.URL

	prevTag := "v1.0.0"
	res, err := c.FetchReleaseAsset(context.Background(), "acme", "rules", "rules.dat", &prevTag)
	require.NoError(t, err)

	assert.True(t, res.NotModified)
	assert.Empty(t, res.Body)
	assert.Equal(t, "v1.0.0", res.GitTagName)
	assert.Zero(t, downloads)
}

func TestFetchReleaseAsset_MissingAsset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/rules/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v1.0.0","name":"Release 1.0","assets":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(5 * time.Second)
	c.GitHubAPIBase = srv.URL

	_, err := c.FetchReleaseAsset(context.Background(), "acme", "rules", "rules.dat", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no asset named")
}
