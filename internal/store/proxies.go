// ABOUTME: Proxy entity store methods: ordered CRUD, windowed rotation, atomic batch replacement
// ABOUTME: Order values are monotonic per group with gaps permitted; reorder only permutes existing values

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateProxy appends a proxy to a group. The new proxy's order value is
// strictly greater than the group's current maximum; the first proxy of
// an empty group gets order 0.
// Returns ErrNotFound if the group doesn't exist.
func (s *SQLiteStore) CreateProxy(ctx context.Context, groupID int64, name string, proxy []byte, proxyVersion uint16) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO proxies (group_id, name, order_num, proxy, proxy_version, updated_at)
		VALUES (
			?1, ?2,
			(SELECT COALESCE(MAX(order_num) + 1, 0) FROM proxies WHERE group_id = ?1),
			?3, ?4, ?5
		)
	`, groupID, name, proxy, proxyVersion, now())
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: proxy group %d", ErrNotFound, groupID)
		}
		return 0, fmt.Errorf("inserting proxy: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting proxy id: %w", err)
	}

	s.logger.Debug("created proxy", "id", id, "group_id", groupID, "name", name)
	return id, nil
}

// UpdateProxy replaces a proxy's name and descriptor. Sibling order values
// are untouched.
// Returns ErrNotFound if the proxy doesn't exist.
func (s *SQLiteStore) UpdateProxy(ctx context.Context, id int64, name string, proxy []byte, proxyVersion uint16) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proxies SET name = ?, proxy = ?, proxy_version = ?, updated_at = ? WHERE id = ?
	`, name, proxy, proxyVersion, now(), id)
	if err != nil {
		return fmt.Errorf("updating proxy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: proxy %d", ErrNotFound, id)
	}

	s.logger.Debug("updated proxy", "id", id, "name", name)
	return nil
}

// DeleteProxy removes a proxy by id. Sibling order values are untouched.
// Returns ErrNotFound if the proxy doesn't exist.
func (s *SQLiteStore) DeleteProxy(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proxies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting proxy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: proxy %d", ErrNotFound, id)
	}

	s.logger.Debug("deleted proxy", "id", id)
	return nil
}

// GetProxiesByGroup returns a group's proxies sorted ascending by order,
// breaking order ties by id for determinism.
func (s *SQLiteStore) GetProxiesByGroup(ctx context.Context, groupID int64) ([]*Proxy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, name, order_num, proxy, proxy_version, updated_at
		FROM proxies
		WHERE group_id = ?
		ORDER BY order_num ASC, id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying proxies: %w", err)
	}
	defer rows.Close()

	var proxies []*Proxy
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning proxy row: %w", err)
		}
		proxies = append(proxies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating proxy rows: %w", err)
	}
	return proxies, nil
}

// ReorderProxies cyclically rotates the order assignment of the proxies
// whose order value lies in [rangeStartOrder, rangeEndOrder] (inclusive).
// Positive moves shift proxies toward higher order values, negative toward
// lower; moves is reduced modulo the window length. The set of order
// values inside the window is preserved exactly and proxies outside it are
// never touched, so the rotation cannot collide with existing order values
// and costs O(window).
// Returns ErrInvalidRange if rangeStartOrder > rangeEndOrder. An empty or
// singleton window is a successful no-op.
func (s *SQLiteStore) ReorderProxies(ctx context.Context, groupID, rangeStartOrder, rangeEndOrder, moves int64) error {
	if rangeStartOrder > rangeEndOrder {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, rangeStartOrder, rangeEndOrder)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, order_num FROM proxies
			WHERE group_id = ? AND order_num >= ? AND order_num <= ?
			ORDER BY order_num ASC, id ASC
		`, groupID, rangeStartOrder, rangeEndOrder)
		if err != nil {
			return fmt.Errorf("querying window: %w", err)
		}

		var ids, orders []int64
		for rows.Next() {
			var id, order int64
			if err := rows.Scan(&id, &order); err != nil {
				rows.Close()
				return fmt.Errorf("scanning window row: %w", err)
			}
			ids = append(ids, id)
			orders = append(orders, order)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterating window rows: %w", err)
		}
		rows.Close()

		n := int64(len(ids))
		if n < 2 {
			return nil
		}
		m := ((moves % n) + n) % n
		if m == 0 {
			return nil
		}

		// The proxy at window position i takes over the order value at
		// position (i+m) mod n: a pure permutation of the existing values.
		for i, id := range ids {
			target := orders[(int64(i)+m)%n]
			if target == orders[i] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE proxies SET order_num = ? WHERE id = ?
			`, target, id); err != nil {
				return fmt.Errorf("rotating proxy %d: %w", id, err)
			}
		}

		s.logger.Debug("reordered proxies", "group_id", groupID,
			"start", rangeStartOrder, "end", rangeEndOrder, "moves", moves, "window", n)
		return nil
	})
}

// BatchUpdateProxiesByGroup atomically replaces a group's entire proxy
// list with the decoded payload. Proxies missing from the payload (by
// name) are deleted, matching ones are updated in place, new ones are
// inserted, and the final order is the payload order renumbered densely
// from 0. A payload that fails to decode, or that names the same proxy
// twice, aborts with ErrDecode before any mutation.
// Returns ErrNotFound if the group doesn't exist.
func (s *SQLiteStore) BatchUpdateProxiesByGroup(ctx context.Context, groupID int64, payload []byte) error {
	if s.decoder == nil {
		return fmt.Errorf("%w: no batch decoder configured", ErrDecode)
	}

	inputs, err := s.decoder.DecodeProxies(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// The first occurrence of a name would silently win otherwise; reject
	// ambiguous payloads outright.
	names := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if _, dup := names[in.Name]; dup {
			return fmt.Errorf("%w: duplicate proxy name %q in payload", ErrDecode, in.Name)
		}
		names[in.Name] = struct{}{}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM proxy_groups WHERE id = ?`, groupID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: proxy group %d", ErrNotFound, groupID)
		}
		if err != nil {
			return fmt.Errorf("querying proxy group: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, name FROM proxies WHERE group_id = ? ORDER BY order_num ASC, id ASC
		`, groupID)
		if err != nil {
			return fmt.Errorf("querying existing proxies: %w", err)
		}

		existing := make(map[string]int64, len(names))
		var stale []int64
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return fmt.Errorf("scanning existing proxy: %w", err)
			}
			_, wanted := names[name]
			if _, claimed := existing[name]; wanted && !claimed {
				existing[name] = id
			} else {
				stale = append(stale, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterating existing proxies: %w", err)
		}
		rows.Close()

		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM proxies WHERE id = ?`, id); err != nil {
				return fmt.Errorf("deleting stale proxy %d: %w", id, err)
			}
		}

		ts := now()
		for i, in := range inputs {
			if id, ok := existing[in.Name]; ok {
				if _, err := tx.ExecContext(ctx, `
					UPDATE proxies SET order_num = ?, proxy = ?, proxy_version = ?, updated_at = ? WHERE id = ?
				`, i, in.Proxy, in.ProxyVersion, ts, id); err != nil {
					return fmt.Errorf("updating proxy %q: %w", in.Name, err)
				}
			} else {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO proxies (group_id, name, order_num, proxy, proxy_version, updated_at)
					VALUES (?, ?, ?, ?, ?, ?)
				`, groupID, in.Name, i, in.Proxy, in.ProxyVersion, ts); err != nil {
					return fmt.Errorf("inserting proxy %q: %w", in.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("batch updated proxies", "group_id", groupID, "count", len(inputs))
	return nil
}

func scanProxy(row scanner) (*Proxy, error) {
	var p Proxy
	var updatedStr string

	if err := row.Scan(&p.ID, &p.GroupID, &p.Name, &p.Order, &p.Proxy, &p.ProxyVersion, &updatedStr); err != nil {
		return nil, err
	}

	var err error
	if p.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &p, nil
}
