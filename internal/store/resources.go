// ABOUTME: Resource entity store methods and per-origin retrieval state
// ABOUTME: A resource has exactly one origin: a plain URL or a GitHub release asset

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateResourceWithURL creates a resource with a URL origin and its
// empty retrieval state, as one transaction.
// Returns ErrDuplicateKey if the key is already taken.
func (s *SQLiteStore) CreateResourceWithURL(ctx context.Context, key, resourceType, localFile, url string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertResource(ctx, tx, key, resourceType, localFile, ResourceOriginURL)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resources_url (resource_id, url) VALUES (?, ?)
		`, id, url); err != nil {
			return fmt.Errorf("inserting url state: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("created url resource", "id", id, "key", key, "url", url)
	return id, nil
}

// CreateResourceWithGitHubRelease creates a resource with a
// GitHub-release origin and its empty retrieval state, as one transaction.
// Returns ErrDuplicateKey if the key is already taken.
func (s *SQLiteStore) CreateResourceWithGitHubRelease(ctx context.Context, key, resourceType, localFile, username, repo, assetName string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertResource(ctx, tx, key, resourceType, localFile, ResourceOriginGitHubRelease)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resources_github_release (resource_id, github_username, github_repo, asset_name)
			VALUES (?, ?, ?, ?)
		`, id, username, repo, assetName); err != nil {
			return fmt.Errorf("inserting github release state: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("created github release resource", "id", id, "key", key,
		"repo", username+"/"+repo, "asset", assetName)
	return id, nil
}

func insertResource(ctx context.Context, tx *sql.Tx, key, resourceType, localFile, remoteType string) (int64, error) {
	ts := now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO resources (key, type, local_file, remote_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, resourceType, localFile, remoteType, ts, ts)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: resource %q", ErrDuplicateKey, key)
		}
		return 0, fmt.Errorf("inserting resource: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting resource id: %w", err)
	}
	return id, nil
}

// GetAllResources returns a snapshot of every resource, ordered by id.
func (s *SQLiteStore) GetAllResources(ctx context.Context) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, type, local_file, remote_type, created_at, updated_at
		FROM resources
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying resources: %w", err)
	}
	defer rows.Close()

	var resources []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resource row: %w", err)
		}
		resources = append(resources, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resource rows: %w", err)
	}
	return resources, nil
}

// GetResourceByKey retrieves a resource by its unique key.
// Returns ErrNotFound if no resource has the key.
func (s *SQLiteStore) GetResourceByKey(ctx context.Context, key string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key, type, local_file, remote_type, created_at, updated_at
		FROM resources
		WHERE key = ?
	`, key)

	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: resource %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("querying resource: %w", err)
	}
	return r, nil
}

// DeleteResource removes a resource and its origin state.
// Returns ErrResourceInUse while a subscription still references it and
// ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteResource(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM proxy_subscriptions WHERE resource_id = ?
		`, id).Scan(&refs); err != nil {
			return fmt.Errorf("counting resource references: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("%w: resource %d", ErrResourceInUse, id)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting resource: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: resource %d", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted resource", "id", id)
	return nil
}

// QueryResourceURLState returns the cached validators for a URL-origin
// resource. Validators are nil until the first successful retrieval.
// Returns ErrNotFound if the resource has no URL origin.
func (s *SQLiteStore) QueryResourceURLState(ctx context.Context, resourceID int64) (*ResourceURLState, error) {
	var st ResourceURLState
	var etag, lastModified, retrievedAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT resource_id, url, etag, last_modified, retrieved_at
		FROM resources_url
		WHERE resource_id = ?
	`, resourceID).Scan(&st.ResourceID, &st.URL, &etag, &lastModified, &retrievedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: url state for resource %d", ErrNotFound, resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying url state: %w", err)
	}

	st.ETag = nullableString(etag)
	st.LastModified = nullableString(lastModified)
	if st.RetrievedAt, err = nullableTime(retrievedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateResourceURLRetrieved overwrites the cached validators after a
// successful fetch and stamps retrieved_at. A nil validator records that
// the origin did not supply one.
// Returns ErrNotFound if the resource has no URL origin.
func (s *SQLiteStore) UpdateResourceURLRetrieved(ctx context.Context, resourceID int64, etag, lastModified *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resources_url
		SET etag = ?, last_modified = ?, retrieved_at = ?
		WHERE resource_id = ?
	`, etag, lastModified, now(), resourceID)
	if err != nil {
		return fmt.Errorf("updating url state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: url state for resource %d", ErrNotFound, resourceID)
	}

	s.logger.Debug("updated url retrieval state", "resource_id", resourceID)
	return nil
}

// QueryResourceGitHubReleaseState returns the cached validators for a
// GitHub-release-origin resource.
// Returns ErrNotFound if the resource has no GitHub release origin.
func (s *SQLiteStore) QueryResourceGitHubReleaseState(ctx context.Context, resourceID int64) (*ResourceGitHubReleaseState, error) {
	var st ResourceGitHubReleaseState
	var gitTag, releaseTitle, retrievedAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT resource_id, github_username, github_repo, asset_name, git_tag, release_title, retrieved_at
		FROM resources_github_release
		WHERE resource_id = ?
	`, resourceID).Scan(&st.ResourceID, &st.GitHubUsername, &st.GitHubRepo, &st.AssetName,
		&gitTag, &releaseTitle, &retrievedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: github release state for resource %d", ErrNotFound, resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying github release state: %w", err)
	}

	st.GitTag = nullableString(gitTag)
	st.ReleaseTitle = nullableString(releaseTitle)
	if st.RetrievedAt, err = nullableTime(retrievedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateResourceGitHubReleaseRetrieved overwrites the cached git tag and
// release title after a successful fetch and stamps retrieved_at.
// Returns ErrNotFound if the resource has no GitHub release origin.
func (s *SQLiteStore) UpdateResourceGitHubReleaseRetrieved(ctx context.Context, resourceID int64, gitTag, releaseTitle string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resources_github_release
		SET git_tag = ?, release_title = ?, retrieved_at = ?
		WHERE resource_id = ?
	`, gitTag, releaseTitle, now(), resourceID)
	if err != nil {
		return fmt.Errorf("updating github release state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: github release state for resource %d", ErrNotFound, resourceID)
	}

	s.logger.Debug("updated github release retrieval state", "resource_id", resourceID)
	return nil
}

func scanResource(row scanner) (*Resource, error) {
	var r Resource
	var createdStr, updatedStr string

	if err := row.Scan(&r.ID, &r.Key, &r.Type, &r.LocalFile, &r.RemoteType, &createdStr, &updatedStr); err != nil {
		return nil, err
	}

	var err error
	if r.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &r, nil
}
