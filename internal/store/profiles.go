// ABOUTME: Profile entity store methods
// ABOUTME: Profiles are named plugin-graph containers; deleting one cascades to its plugins

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateProfile creates a profile and returns its id.
// Returns ErrDuplicateName if the name is already taken.
func (s *SQLiteStore) CreateProfile(ctx context.Context, name, locale string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: profile name must not be empty", ErrInvalidParam)
	}

	permanentID := uuid.New()
	ts := now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (permanent_id, name, locale, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, permanentID[:], name, locale, ts, ts)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: profile %q", ErrDuplicateName, name)
		}
		return 0, fmt.Errorf("inserting profile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting profile id: %w", err)
	}

	s.logger.Debug("created profile", "id", id, "name", name)
	return id, nil
}

// GetProfile retrieves a profile by id.
// Returns ErrNotFound if the profile doesn't exist.
func (s *SQLiteStore) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, permanent_id, name, locale, last_used_at, created_at
		FROM profiles
		WHERE id = ?
	`, id)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: profile %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}

// GetAllProfiles returns a snapshot of every profile, ordered by id.
func (s *SQLiteStore) GetAllProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, permanent_id, name, locale, last_used_at, created_at
		FROM profiles
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile rows: %w", err)
	}
	return profiles, nil
}

// UpdateProfile updates a profile's name and locale.
// Returns ErrNotFound if the profile doesn't exist and ErrDuplicateName if
// the new name collides with another profile.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id int64, name, locale string) error {
	if name == "" {
		return fmt.Errorf("%w: profile name must not be empty", ErrInvalidParam)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET name = ?, locale = ? WHERE id = ?
	`, name, locale, id)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: profile %q", ErrDuplicateName, name)
		}
		return fmt.Errorf("updating profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: profile %d", ErrNotFound, id)
	}

	s.logger.Debug("updated profile", "id", id, "name", name)
	return nil
}

// DeleteProfile removes a profile and, via cascade, every plugin it owns.
// Returns ErrNotFound if the profile doesn't exist.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: profile %d", ErrNotFound, id)
	}

	s.logger.Debug("deleted profile", "id", id)
	return nil
}

// TouchProfileLastUsed bumps a profile's last_used_at to the current time.
func (s *SQLiteStore) TouchProfileLastUsed(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET last_used_at = ? WHERE id = ?
	`, now(), id)
	if err != nil {
		return fmt.Errorf("touching profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: profile %d", ErrNotFound, id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var p Profile
	var permanentID []byte
	var lastUsedStr, createdStr string

	if err := row.Scan(&p.ID, &permanentID, &p.Name, &p.Locale, &lastUsedStr, &createdStr); err != nil {
		return nil, err
	}

	pid, err := uuid.FromBytes(permanentID)
	if err != nil {
		return nil, fmt.Errorf("parsing permanent_id: %w", err)
	}
	p.PermanentID = pid

	if p.LastUsedAt, err = parseTime(lastUsedStr); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	return &p, nil
}
