// ABOUTME: ProxyGroup entity store methods including cascade deletion rules
// ABOUTME: Deleting a group removes its proxies, its subscription and its resource when unreferenced

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateProxyGroup creates a proxy group and returns its id. The kind is
// fixed for the lifetime of the group.
// Returns ErrDuplicateName if the name is already taken.
func (s *SQLiteStore) CreateProxyGroup(ctx context.Context, name string, kind ProxyGroupKind) (int64, error) {
	if kind != ProxyGroupManual && kind != ProxyGroupSubscription {
		return 0, fmt.Errorf("%w: unknown proxy group kind %q", ErrInvalidParam, kind)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO proxy_groups (name, type, created_at) VALUES (?, ?, ?)
	`, name, kind, now())
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: proxy group %q", ErrDuplicateName, name)
		}
		return 0, fmt.Errorf("inserting proxy group: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting proxy group id: %w", err)
	}

	s.logger.Debug("created proxy group", "id", id, "name", name, "kind", kind)
	return id, nil
}

// GetProxyGroup retrieves a proxy group by id.
// Returns ErrNotFound if the group doesn't exist.
func (s *SQLiteStore) GetProxyGroup(ctx context.Context, id int64) (*ProxyGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, created_at FROM proxy_groups WHERE id = ?
	`, id)

	g, err := scanProxyGroup(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: proxy group %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying proxy group: %w", err)
	}
	return g, nil
}

// GetAllProxyGroups returns a snapshot of every proxy group, ordered by id.
func (s *SQLiteStore) GetAllProxyGroups(ctx context.Context) ([]*ProxyGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, created_at FROM proxy_groups ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying proxy groups: %w", err)
	}
	defer rows.Close()

	var groups []*ProxyGroup
	for rows.Next() {
		g, err := scanProxyGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning proxy group row: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating proxy group rows: %w", err)
	}
	return groups, nil
}

// RenameProxyGroup changes a group's name.
// Returns ErrNotFound if the group doesn't exist and ErrDuplicateName on a
// name collision.
func (s *SQLiteStore) RenameProxyGroup(ctx context.Context, id int64, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proxy_groups SET name = ? WHERE id = ?
	`, name, id)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: proxy group %q", ErrDuplicateName, name)
		}
		return fmt.Errorf("renaming proxy group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: proxy group %d", ErrNotFound, id)
	}

	s.logger.Debug("renamed proxy group", "id", id, "name", name)
	return nil
}

// DeleteProxyGroup removes a group, its proxies and its subscription row.
// The subscription's backing resource is removed too unless another
// subscription still references it. The whole cascade is one transaction.
// Returns ErrNotFound if the group doesn't exist.
func (s *SQLiteStore) DeleteProxyGroup(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Remember the backing resource before the cascade removes the
		// subscription row.
		var resourceID sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT resource_id FROM proxy_subscriptions WHERE proxy_group_id = ?
		`, id).Scan(&resourceID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("querying subscription resource: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM proxy_groups WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting proxy group: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: proxy group %d", ErrNotFound, id)
		}

		if !resourceID.Valid {
			return nil
		}

		// Drop the resource only when no other subscription references it
		var refs int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM proxy_subscriptions WHERE resource_id = ?
		`, resourceID.Int64).Scan(&refs); err != nil {
			return fmt.Errorf("counting resource references: %w", err)
		}
		if refs == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, resourceID.Int64); err != nil {
				return fmt.Errorf("deleting subscription resource: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted proxy group", "id", id)
	return nil
}

func scanProxyGroup(row scanner) (*ProxyGroup, error) {
	var g ProxyGroup
	var kind, createdStr string

	if err := row.Scan(&g.ID, &g.Name, &kind, &createdStr); err != nil {
		return nil, err
	}
	g.Kind = ProxyGroupKind(kind)

	var err error
	if g.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	return &g, nil
}
