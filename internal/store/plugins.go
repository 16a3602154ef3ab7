// ABOUTME: Plugin entity store methods including the entry-plugin invariant
// ABOUTME: At most one plugin per profile carries the entry flag at any observable point

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// verifyPlugin runs the configured external verifier, if any. A rejection
// surfaces as ErrInvalidParam before any write happens.
func (s *SQLiteStore) verifyPlugin(pluginType string, pluginVersion uint16, param []byte) error {
	if s.verifier == nil {
		return nil
	}
	if err := s.verifier.VerifyPlugin(pluginType, pluginVersion, param); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return nil
}

// CreatePlugin creates a plugin in a profile and returns its id. The
// (type, version, param) triple is validated through the external
// verifier first.
// Returns ErrInvalidParam on verifier rejection, ErrDuplicateName if the
// name collides within the profile, ErrNotFound if the profile is absent.
func (s *SQLiteStore) CreatePlugin(ctx context.Context, profileID int64, name, desc, pluginType string, pluginVersion uint16, param []byte) (int64, error) {
	if err := s.verifyPlugin(pluginType, pluginVersion, param); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plugins (profile_id, name, description, plugin, plugin_version, param, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, profileID, name, desc, pluginType, pluginVersion, param, now())
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: profile %d", ErrNotFound, profileID)
		}
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: plugin %q in profile %d", ErrDuplicateName, name, profileID)
		}
		return 0, fmt.Errorf("inserting plugin: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting plugin id: %w", err)
	}

	s.logger.Debug("created plugin", "id", id, "profile_id", profileID, "name", name, "type", pluginType)
	return id, nil
}

// UpdatePlugin updates a plugin's fields. The new (type, version, param)
// triple is re-validated through the external verifier.
// Returns ErrNotFound if the plugin doesn't exist in the given profile.
func (s *SQLiteStore) UpdatePlugin(ctx context.Context, id, profileID int64, name, desc, pluginType string, pluginVersion uint16, param []byte) error {
	if err := s.verifyPlugin(pluginType, pluginVersion, param); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE plugins
		SET name = ?, description = ?, plugin = ?, plugin_version = ?, param = ?, updated_at = ?
		WHERE id = ? AND profile_id = ?
	`, name, desc, pluginType, pluginVersion, param, now(), id, profileID)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: plugin %q in profile %d", ErrDuplicateName, name, profileID)
		}
		return fmt.Errorf("updating plugin: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: plugin %d in profile %d", ErrNotFound, id, profileID)
	}

	s.logger.Debug("updated plugin", "id", id, "name", name)
	return nil
}

// DeletePlugin removes a plugin by id.
// Returns ErrNotFound if the plugin doesn't exist.
func (s *SQLiteStore) DeletePlugin(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting plugin: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: plugin %d", ErrNotFound, id)
	}

	s.logger.Debug("deleted plugin", "id", id)
	return nil
}

// GetPluginsByProfile returns a snapshot of a profile's plugins, ordered
// by id.
func (s *SQLiteStore) GetPluginsByProfile(ctx context.Context, profileID int64) ([]*Plugin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, name, description, plugin, plugin_version, param, is_entry, updated_at
		FROM plugins
		WHERE profile_id = ?
		ORDER BY id ASC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("querying plugins: %w", err)
	}
	defer rows.Close()

	var plugins []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plugin row: %w", err)
		}
		plugins = append(plugins, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plugin rows: %w", err)
	}
	return plugins, nil
}

// SetEntryPlugin marks a plugin as its profile's entry point. Any
// previously flagged plugin in the profile is cleared in the same
// transaction, so at most one entry plugin is ever observable. On any
// failure the previous entry assignment stays intact.
// Returns ErrNotFound if the plugin doesn't exist in the given profile.
func (s *SQLiteStore) SetEntryPlugin(ctx context.Context, profileID, pluginID int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE plugins SET is_entry = 1 WHERE id = ? AND profile_id = ?
		`, pluginID, profileID)
		if err != nil {
			return fmt.Errorf("setting entry flag: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: plugin %d in profile %d", ErrNotFound, pluginID, profileID)
		}

		// Clear the flag everywhere else within the same transaction
		if _, err := tx.ExecContext(ctx, `
			UPDATE plugins SET is_entry = 0 WHERE profile_id = ? AND id != ?
		`, profileID, pluginID); err != nil {
			return fmt.Errorf("clearing previous entry flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("set entry plugin", "profile_id", profileID, "plugin_id", pluginID)
	return nil
}

// UnsetEntryPlugin clears a plugin's entry flag, leaving the profile with
// no entry configured.
// Returns ErrNotFound if the plugin doesn't exist in the given profile.
func (s *SQLiteStore) UnsetEntryPlugin(ctx context.Context, profileID, pluginID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE plugins SET is_entry = 0 WHERE id = ? AND profile_id = ?
	`, pluginID, profileID)
	if err != nil {
		return fmt.Errorf("clearing entry flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: plugin %d in profile %d", ErrNotFound, pluginID, profileID)
	}

	s.logger.Debug("unset entry plugin", "profile_id", profileID, "plugin_id", pluginID)
	return nil
}

// GetEntryPlugin returns the profile's entry plugin, or nil (without an
// error) when no entry is configured.
func (s *SQLiteStore) GetEntryPlugin(ctx context.Context, profileID int64) (*Plugin, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, name, description, plugin, plugin_version, param, is_entry, updated_at
		FROM plugins
		WHERE profile_id = ? AND is_entry = 1
	`, profileID)

	p, err := scanPlugin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry plugin: %w", err)
	}
	return p, nil
}

func scanPlugin(row scanner) (*Plugin, error) {
	var p Plugin
	var updatedStr string

	if err := row.Scan(&p.ID, &p.ProfileID, &p.Name, &p.Desc, &p.Plugin, &p.PluginVersion, &p.Param, &p.IsEntry, &updatedStr); err != nil {
		return nil, err
	}

	var err error
	if p.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &p, nil
}
