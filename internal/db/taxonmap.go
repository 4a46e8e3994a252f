package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// SaveTaxonMap replaces the stored entries of the map named m.Name. Pending
// raw labels are stored with a NULL target.
func (db *DB) SaveTaxonMap(ctx context.Context, m *taxonomy.Map) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM taxon_maps WHERE map_name = ?`, m.Name); err != nil {
			return err
		}
		idx := 0
		insert := func(raw string, target sql.NullString, weight sql.NullFloat64, meta sql.NullString) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO taxon_maps (map_name, entry_idx, raw, target, weight, metadata_json) VALUES (?, ?, ?, ?, ?, ?)`,
				m.Name, idx, raw, target, weight, meta)
			idx++
			return err
		}
		for _, e := range m.Entries {
			var meta sql.NullString
			if len(e.Metadata) > 0 {
				b, err := json.Marshal(e.Metadata)
				if err != nil {
					return err
				}
				meta = sql.NullString{String: string(b), Valid: true}
			}
			if err := insert(e.Raw, sql.NullString{String: e.Target, Valid: true},
				sql.NullFloat64{Float64: e.Weight, Valid: true}, meta); err != nil {
				return fmt.Errorf("insert %s entry %q: %w", m.Name, e.Raw, err)
			}
		}
		for _, raw := range m.Pending {
			if err := insert(raw, sql.NullString{}, sql.NullFloat64{}, sql.NullString{}); err != nil {
				return fmt.Errorf("insert %s pending %q: %w", m.Name, raw, err)
			}
		}
		return nil
	})
}

// LoadTaxonMap reads the named map and validates it with taxonomy.NewMap.
func (db *DB) LoadTaxonMap(ctx context.Context, name string) (*taxonomy.Map, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT raw, target, weight, metadata_json FROM taxon_maps WHERE map_name = ? ORDER BY entry_idx`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []taxonomy.Entry
	var pending []string
	found := false
	for rows.Next() {
		found = true
		var raw string
		var target, meta sql.NullString
		var weight sql.NullFloat64
		if err := rows.Scan(&raw, &target, &weight, &meta); err != nil {
			return nil, err
		}
		if !target.Valid {
			pending = append(pending, raw)
			continue
		}
		e := taxonomy.Entry{Raw: raw, Target: target.String, Weight: weight.Float64}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %q: %w", raw, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("taxon map %q: %w", name, sql.ErrNoRows)
	}

	m, err := taxonomy.NewMap(name, entries)
	if err != nil {
		return nil, err
	}
	m.Pending = pending
	return m, nil
}

// TaxonMapNames lists the stored maps.
func (db *DB) TaxonMapNames(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT map_name FROM taxon_maps ORDER BY map_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
