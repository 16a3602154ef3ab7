// ABOUTME: Subscription synchronizer tying fetch, codec and store together
// ABOUTME: Refreshes a subscription group's proxy list and quota info in one pass

package subsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/windlass-proxy/windlass/internal/codec"
	"github.com/windlass-proxy/windlass/internal/fetch"
	"github.com/windlass-proxy/windlass/internal/store"
)

// Subscription formats the synchronizer knows how to parse.
const (
	FormatProxyList = "proxy-list"
	FormatClash     = "clash"
)

// ErrUnknownFormat marks a subscription whose stored format has no parser.
var ErrUnknownFormat = errors.New("unknown subscription format")

// Fetcher is the network dependency of the synchronizer, satisfied by
// *fetch.Client.
type Fetcher interface {
	FetchURL(ctx context.Context, url string, prev fetch.Validators) (*fetch.Result, error)
}

// Result reports what a refresh did.
type Result struct {
	NotModified bool
	ProxyCount  int
}

// Synchronizer refreshes subscription-backed proxy groups.
type Synchronizer struct {
	store   store.Store
	fetcher Fetcher
	logger  *slog.Logger
}

// New creates a synchronizer over the given store and fetcher.
func New(st store.Store, fetcher Fetcher) *Synchronizer {
	return &Synchronizer{
		store:   st,
		fetcher: fetcher,
		logger:  slog.Default().With("component", "subsync"),
	}
}

// Refresh fetches the subscription behind groupID and, when the remote
// document changed, replaces the group's proxy list and records the
// validators and quota the endpoint reported. An unchanged document
// updates nothing but the retrieval timestamp.
func (s *Synchronizer) Refresh(ctx context.Context, groupID int64) (*Result, error) {
	sub, err := s.store.QuerySubscription(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying subscription for group %d: %w", groupID, err)
	}

	urlState, err := s.store.QueryResourceURLState(ctx, sub.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("querying resource state for group %d: %w", groupID, err)
	}

	prev := fetch.Validators{ETag: urlState.ETag, LastModified: urlState.LastModified}
	fetched, err := s.fetcher.FetchURL(ctx, urlState.URL, prev)
	if err != nil {
		return nil, fmt.Errorf("fetching subscription for group %d: %w", groupID, err)
	}

	if fetched.NotModified {
		s.logger.Info("subscription unchanged", "group_id", groupID)
		if err := s.store.UpdateResourceURLRetrieved(ctx, sub.ResourceID, urlState.ETag, urlState.LastModified); err != nil {
			return nil, fmt.Errorf("recording retrieval for group %d: %w", groupID, err)
		}
		return &Result{NotModified: true}, nil
	}

	records, err := parse(sub.Format, fetched.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing subscription for group %d: %w", groupID, err)
	}

	payload, err := codec.EncodeProxyList(records)
	if err != nil {
		return nil, fmt.Errorf("encoding proxy list for group %d: %w", groupID, err)
	}

	if err := s.store.BatchUpdateProxiesByGroup(ctx, groupID, payload); err != nil {
		return nil, fmt.Errorf("replacing proxies for group %d: %w", groupID, err)
	}

	if err := s.store.UpdateResourceURLRetrieved(ctx, sub.ResourceID, fetched.Validators.ETag, fetched.Validators.LastModified); err != nil {
		return nil, fmt.Errorf("recording retrieval for group %d: %w", groupID, err)
	}

	update := store.SubscriptionUpdate{}
	if fetched.Usage != nil {
		update.UploadBytesUsed = fetched.Usage.UploadBytesUsed
		update.DownloadBytesUsed = fetched.Usage.DownloadBytesUsed
		update.BytesTotal = fetched.Usage.BytesTotal
		update.ExpiresAt = fetched.Usage.ExpiresAt
	}
	if err := s.store.UpdateSubscriptionRetrieved(ctx, groupID, update); err != nil {
		return nil, fmt.Errorf("recording subscription usage for group %d: %w", groupID, err)
	}

	s.logger.Info("subscription refreshed", "group_id", groupID, "proxies", len(records))
	return &Result{ProxyCount: len(records)}, nil
}

func parse(format string, body []byte) ([]codec.ProxyRecord, error) {
	switch format {
	case FormatProxyList:
		return codec.DecodeProxyList(body)
	case FormatClash:
		return codec.DecodeClash(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
