package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite {
	return &SettingsSQLite{db: db}
}

const (
	upsertSettingSQL = `
		INSERT INTO Settings (Name, Value)
		VALUES (?, ?)
		ON CONFLICT(Name) DO UPDATE SET
			Value=excluded.Value
	`

	selectSettingsSQL = `SELECT Name, Value FROM Settings`
)

// Save inserts or replaces one setting. Names are stored lowercase.
func (r *SettingsSQLite) Save(ctx context.Context, name, value string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("empty setting name")
	}
	if _, err := r.db.ExecContext(ctx, upsertSettingSQL, name, value); err != nil {
		return fmt.Errorf("save setting %q: %w", name, err)
	}
	return nil
}

// All returns every setting keyed by lowercase name.
func (r *SettingsSQLite) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, selectSettingsSQL)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
