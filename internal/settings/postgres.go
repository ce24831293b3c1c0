package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const settingsRowID = 1

// PostgresStore keeps the settings in a single jsonb row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the settings table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS prompt_switcher_settings (
			id         INTEGER PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate settings table: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (*Settings, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM prompt_switcher_settings WHERE id = $1`, settingsRowID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	return decode(payload)
}

func (p *PostgresStore) Save(ctx context.Context, s *Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO prompt_switcher_settings (id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`, settingsRowID, data)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM prompt_switcher_settings WHERE id = $1`, settingsRowID); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	return nil
}
