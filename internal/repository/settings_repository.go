package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JustinTDCT/cinescript/internal/db"
)

type SettingsRepository struct {
	db *db.DB
}

func NewSettingsRepository(d *db.DB) *SettingsRepository {
	return &SettingsRepository{db: d}
}

// Get retrieves a setting value by key. Returns empty string if not found.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT value FROM settings WHERE key = $1`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Set upserts a setting key-value pair.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), key, value)
	return err
}

// GetAll returns all settings as a map.
func (r *SettingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// Delete removes a setting by key.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM settings WHERE key = $1`), key)
	return err
}
