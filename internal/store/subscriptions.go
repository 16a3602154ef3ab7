// ABOUTME: Subscription store methods binding proxy groups to remote resources
// ABOUTME: Usage and expiry fields stay unknown until a fetch reports them

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateSubscriptionGroup creates a subscription-kind proxy group, its
// backing URL resource and an empty subscription row, as one transaction.
// The resource key and cache file name are derived from a fresh UUID.
// Returns ErrDuplicateName if the group name is already taken.
func (s *SQLiteStore) CreateSubscriptionGroup(ctx context.Context, name, format, url string) (int64, error) {
	var groupID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO proxy_groups (name, type, created_at) VALUES (?, ?, ?)
		`, name, ProxyGroupSubscription, ts)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: proxy group %q", ErrDuplicateName, name)
			}
			return fmt.Errorf("inserting proxy group: %w", err)
		}
		groupID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting proxy group id: %w", err)
		}

		key := "subscription-" + uuid.NewString()
		res, err = tx.ExecContext(ctx, `
			INSERT INTO resources (key, type, local_file, remote_type, created_at, updated_at)
			VALUES (?, 'subscription', ?, ?, ?, ?)
		`, key, "subscriptions/"+key+".dat", ResourceOriginURL, ts, ts)
		if err != nil {
			return fmt.Errorf("inserting subscription resource: %w", err)
		}
		resourceID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting resource id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resources_url (resource_id, url) VALUES (?, ?)
		`, resourceID, url); err != nil {
			return fmt.Errorf("inserting url state: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proxy_subscriptions (proxy_group_id, resource_id, format, url)
			VALUES (?, ?, ?, ?)
		`, groupID, resourceID, format, url); err != nil {
			return fmt.Errorf("inserting subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("created subscription group", "id", groupID, "name", name, "format", format)
	return groupID, nil
}

// QuerySubscription returns the current usage/expiry snapshot for a
// subscription-kind group.
// Returns ErrNotFound if the group has no subscription.
func (s *SQLiteStore) QuerySubscription(ctx context.Context, groupID int64) (*Subscription, error) {
	var sub Subscription
	var upload, download, total sql.NullInt64
	var expiresAt, retrievedAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT proxy_group_id, resource_id, format, url,
		       upload_bytes_used, download_bytes_used, bytes_total,
		       expires_at, retrieved_at
		FROM proxy_subscriptions
		WHERE proxy_group_id = ?
	`, groupID).Scan(&sub.GroupID, &sub.ResourceID, &sub.Format, &sub.URL,
		&upload, &download, &total, &expiresAt, &retrievedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: subscription for group %d", ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying subscription: %w", err)
	}

	sub.UploadBytesUsed = nullableBytes(upload)
	sub.DownloadBytesUsed = nullableBytes(download)
	sub.BytesTotal = nullableBytes(total)
	if sub.ExpiresAt, err = nullableTime(expiresAt); err != nil {
		return nil, err
	}
	if sub.RetrievedAt, err = nullableTime(retrievedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscriptionRetrieved records what a successful fetch reported.
// Each field is independently optional: a nil field leaves the stored
// value untouched instead of overwriting it with a sentinel. retrieved_at
// is always stamped.
// Returns ErrNotFound if the group has no subscription.
func (s *SQLiteStore) UpdateSubscriptionRetrieved(ctx context.Context, groupID int64, update SubscriptionUpdate) error {
	var expiresAt *string
	if update.ExpiresAt != nil {
		v := update.ExpiresAt.UTC().Format(timeFormat)
		expiresAt = &v
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE proxy_subscriptions SET
			upload_bytes_used   = COALESCE(?, upload_bytes_used),
			download_bytes_used = COALESCE(?, download_bytes_used),
			bytes_total         = COALESCE(?, bytes_total),
			expires_at          = COALESCE(?, expires_at),
			retrieved_at        = ?
		WHERE proxy_group_id = ?
	`, bytesParam(update.UploadBytesUsed), bytesParam(update.DownloadBytesUsed),
		bytesParam(update.BytesTotal), expiresAt, now(), groupID)
	if err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: subscription for group %d", ErrNotFound, groupID)
	}

	s.logger.Debug("updated subscription retrieval state", "group_id", groupID)
	return nil
}

// bytesParam converts an optional byte count to a driver parameter.
func bytesParam(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// nullableBytes converts a nullable byte-count column to *uint64.
func nullableBytes(ni sql.NullInt64) *uint64 {
	if !ni.Valid {
		return nil
	}
	v := uint64(ni.Int64)
	return &v
}
