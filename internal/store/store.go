// ABOUTME: Store interface and data types for windlass configuration persistence
// ABOUTME: Defines Profile, Plugin, ProxyGroup, Proxy, Resource, Subscription and the Store interface

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProxyGroupKind discriminates hand-maintained groups from
// subscription-backed ones. The kind is fixed at creation time.
type ProxyGroupKind string

const (
	ProxyGroupManual       ProxyGroupKind = "manual"
	ProxyGroupSubscription ProxyGroupKind = "subscription"
)

// Resource origin tags. A resource is retrieved either from a plain URL or
// from a GitHub release asset, never both.
const (
	ResourceOriginURL           = "url"
	ResourceOriginGitHubRelease = "github_release"
)

// Profile is a named container for a plugin graph.
type Profile struct {
	ID          int64
	PermanentID uuid.UUID
	Name        string
	Locale      string
	LastUsedAt  time.Time
	CreatedAt   time.Time
}

// Plugin is a named, typed, versioned node in a profile's plugin graph.
// Edges between plugins live inside Param as an opaque serialized form;
// the store never interprets them.
type Plugin struct {
	ID            int64
	ProfileID     int64
	Name          string
	Desc          string
	Plugin        string // plugin-type identifier, validated by the verifier
	PluginVersion uint16
	Param         []byte
	IsEntry       bool
	UpdatedAt     time.Time
}

// ProxyGroup owns a strictly ordered sequence of proxies.
type ProxyGroup struct {
	ID        int64
	Name      string
	Kind      ProxyGroupKind
	CreatedAt time.Time
}

// Proxy is one entry in a group's ordered list. Order values increase
// monotonically per group but are not required to be contiguous.
type Proxy struct {
	ID           int64
	GroupID      int64
	Name         string
	Order        int64
	Proxy        []byte // opaque versioned proxy descriptor
	ProxyVersion uint16
	UpdatedAt    time.Time
}

// ProxyInput is one decoded record of a batch-update payload.
type ProxyInput struct {
	Name         string
	Proxy        []byte
	ProxyVersion uint16
}

// Resource is a locally cached artifact retrieved from a remote origin.
type Resource struct {
	ID         int64
	Key        string
	Type       string
	LocalFile  string
	RemoteType string // ResourceOriginURL or ResourceOriginGitHubRelease
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResourceURLState holds the cached validators for a URL-origin resource.
// ETag and LastModified are nil until the first successful retrieval.
type ResourceURLState struct {
	ResourceID   int64
	URL          string
	ETag         *string
	LastModified *string
	RetrievedAt  *time.Time
}

// ResourceGitHubReleaseState holds the cached validators for a
// GitHub-release-origin resource.
type ResourceGitHubReleaseState struct {
	ResourceID     int64
	GitHubUsername string
	GitHubRepo     string
	AssetName      string
	GitTag         *string
	ReleaseTitle   *string
	RetrievedAt    *time.Time
}

// Subscription binds a subscription-kind proxy group to its remote
// resource. Usage and expiry fields are nil until the first successful
// fetch reports them.
type Subscription struct {
	GroupID           int64
	ResourceID        int64
	Format            string
	URL               string
	UploadBytesUsed   *uint64
	DownloadBytesUsed *uint64
	BytesTotal        *uint64
	ExpiresAt         *time.Time
	RetrievedAt       *time.Time
}

// SubscriptionUpdate carries the optional fields of
// UpdateSubscriptionRetrieved. A nil field leaves the stored value
// untouched rather than overwriting it with a sentinel.
type SubscriptionUpdate struct {
	UploadBytesUsed   *uint64
	DownloadBytesUsed *uint64
	BytesTotal        *uint64
	ExpiresAt         *time.Time
}

// PluginVerifier validates a plugin's type, version and parameter blob
// before the store persists it. Implementations live outside the store;
// a rejection surfaces as ErrInvalidParam.
type PluginVerifier interface {
	VerifyPlugin(pluginType string, pluginVersion uint16, param []byte) error
}

// BatchDecoder decodes a batch-update payload into proxy records. A
// decode failure surfaces as ErrDecode and aborts the batch before any
// write.
type BatchDecoder interface {
	DecodeProxies(payload []byte) ([]ProxyInput, error)
}

// Store is the configuration store boundary. Every mutating operation
// runs inside a single transaction: either all of its effects commit or
// none do.
type Store interface {
	// Profiles
	CreateProfile(ctx context.Context, name, locale string) (int64, error)
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	GetAllProfiles(ctx context.Context) ([]*Profile, error)
	UpdateProfile(ctx context.Context, id int64, name, locale string) error
	DeleteProfile(ctx context.Context, id int64) error
	TouchProfileLastUsed(ctx context.Context, id int64) error

	// Plugins
	CreatePlugin(ctx context.Context, profileID int64, name, desc, pluginType string, pluginVersion uint16, param []byte) (int64, error)
	UpdatePlugin(ctx context.Context, id, profileID int64, name, desc, pluginType string, pluginVersion uint16, param []byte) error
	DeletePlugin(ctx context.Context, id int64) error
	GetPluginsByProfile(ctx context.Context, profileID int64) ([]*Plugin, error)
	SetEntryPlugin(ctx context.Context, profileID, pluginID int64) error
	UnsetEntryPlugin(ctx context.Context, profileID, pluginID int64) error
	GetEntryPlugin(ctx context.Context, profileID int64) (*Plugin, error)

	// Proxy groups
	CreateProxyGroup(ctx context.Context, name string, kind ProxyGroupKind) (int64, error)
	GetProxyGroup(ctx context.Context, id int64) (*ProxyGroup, error)
	GetAllProxyGroups(ctx context.Context) ([]*ProxyGroup, error)
	RenameProxyGroup(ctx context.Context, id int64, name string) error
	DeleteProxyGroup(ctx context.Context, id int64) error

	// Proxies
	CreateProxy(ctx context.Context, groupID int64, name string, proxy []byte, proxyVersion uint16) (int64, error)
	UpdateProxy(ctx context.Context, id int64, name string, proxy []byte, proxyVersion uint16) error
	DeleteProxy(ctx context.Context, id int64) error
	GetProxiesByGroup(ctx context.Context, groupID int64) ([]*Proxy, error)
	ReorderProxies(ctx context.Context, groupID, rangeStartOrder, rangeEndOrder, moves int64) error
	BatchUpdateProxiesByGroup(ctx context.Context, groupID int64, payload []byte) error

	// Resources
	CreateResourceWithURL(ctx context.Context, key, resourceType, localFile, url string) (int64, error)
	CreateResourceWithGitHubRelease(ctx context.Context, key, resourceType, localFile, username, repo, assetName string) (int64, error)
	GetAllResources(ctx context.Context) ([]*Resource, error)
	GetResourceByKey(ctx context.Context, key string) (*Resource, error)
	DeleteResource(ctx context.Context, id int64) error
	QueryResourceURLState(ctx context.Context, resourceID int64) (*ResourceURLState, error)
	UpdateResourceURLRetrieved(ctx context.Context, resourceID int64, etag, lastModified *string) error
	QueryResourceGitHubReleaseState(ctx context.Context, resourceID int64) (*ResourceGitHubReleaseState, error)
	UpdateResourceGitHubReleaseRetrieved(ctx context.Context, resourceID int64, gitTag, releaseTitle string) error

	// Subscriptions
	CreateSubscriptionGroup(ctx context.Context, name, format, url string) (int64, error)
	QuerySubscription(ctx context.Context, groupID int64) (*Subscription, error)
	UpdateSubscriptionRetrieved(ctx context.Context, groupID int64, update SubscriptionUpdate) error

	// Close releases the underlying database handle
	Close() error
}
