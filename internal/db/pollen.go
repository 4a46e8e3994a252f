package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Dataset names in dataset_taxa.
const (
	datasetPollen     = "pollen"
	datasetVegetation = "vegetation"
)

func formatCoord(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// withTx runs fn in a transaction, committing on success.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func replaceTaxa(ctx context.Context, tx *sql.Tx, dataset string, taxa []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_taxa WHERE dataset = ?`, dataset); err != nil {
		return err
	}
	for j, name := range taxa {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_taxa (dataset, taxon_idx, taxon) VALUES (?, ?, ?)`,
			dataset, j, name); err != nil {
			return fmt.Errorf("insert taxon %q: %w", name, err)
		}
	}
	return nil
}

func (db *DB) loadTaxa(ctx context.Context, dataset string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT taxon FROM dataset_taxa WHERE dataset = ? ORDER BY taxon_idx`, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taxa []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		taxa = append(taxa, name)
	}
	return taxa, rows.Err()
}

// ImportPollen replaces the stored pollen samples, ages and counts with d.
func (db *DB) ImportPollen(ctx context.Context, d *records.PollenData) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		// Ages and counts cascade.
		if _, err := tx.ExecContext(ctx, `DELETE FROM pollen_samples`); err != nil {
			return err
		}
		if err := replaceTaxa(ctx, tx, datasetPollen, d.Counts.Taxa); err != nil {
			return err
		}
		for _, s := range d.Samples {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pollen_samples (sample_id, site_id, row_index, x, y, srs) VALUES (?, ?, ?, ?, ?, ?)`,
				s.SampleID, s.SiteID, s.Row, s.Location.X, s.Location.Y, d.SRS); err != nil {
				return fmt.Errorf("insert sample %q: %w", s.SampleID, err)
			}
			for tag, age := range s.Ages {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO sample_ages (sample_id, age_type, age) VALUES (?, ?, ?)`,
					s.SampleID, tag, age); err != nil {
					return fmt.Errorf("insert age of %q: %w", s.SampleID, err)
				}
			}
			for j, v := range d.Counts.Values[s.Row] {
				if v == 0 {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO pollen_counts (sample_id, taxon_idx, value) VALUES (?, ?, ?)`,
					s.SampleID, j, v); err != nil {
					return fmt.Errorf("insert counts of %q: %w", s.SampleID, err)
				}
			}
		}
		return nil
	})
}

// LoadPollen reads the stored pollen data back in import order.
func (db *DB) LoadPollen(ctx context.Context) (*records.PollenData, error) {
	taxa, err := db.loadTaxa(ctx, datasetPollen)
	if err != nil {
		return nil, fmt.Errorf("load pollen taxa: %w", err)
	}
	d := &records.PollenData{Counts: taxonomy.NewTable(records.PollenIDColumns, taxa)}

	rows, err := db.QueryContext(ctx,
		`SELECT sample_id, site_id, x, y, srs FROM pollen_samples ORDER BY row_index`)
	if err != nil {
		return nil, fmt.Errorf("load pollen samples: %w", err)
	}
	bySample := make(map[string]int)
	for rows.Next() {
		var s records.Sample
		if err := rows.Scan(&s.SampleID, &s.SiteID, &s.Location.X, &s.Location.Y, &d.SRS); err != nil {
			rows.Close()
			return nil, err
		}
		s.Row = len(d.Samples)
		s.Ages = map[string]float64{}
		bySample[s.SampleID] = s.Row
		d.Samples = append(d.Samples, s)
		d.Counts.IDs = append(d.Counts.IDs, []string{s.SiteID, s.SampleID, formatCoord(s.Location.X), formatCoord(s.Location.Y)})
		d.Counts.Values = append(d.Counts.Values, make([]float64, len(taxa)))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.scanTriples(ctx, `SELECT sample_id, age_type, age FROM sample_ages`,
		func(id, tag string, age float64) {
			d.Samples[bySample[id]].Ages[tag] = age
		}); err != nil {
		return nil, fmt.Errorf("load sample ages: %w", err)
	}
	if err := db.scanCounts(ctx, `SELECT sample_id, taxon_idx, value FROM pollen_counts`,
		func(id string, j int, v float64) error {
			if j < 0 || j >= len(taxa) {
				return fmt.Errorf("sample %q has taxon index %d of %d", id, j, len(taxa))
			}
			d.Counts.Values[bySample[id]][j] = v
			return nil
		}); err != nil {
		return nil, fmt.Errorf("load pollen counts: %w", err)
	}
	return d, nil
}

func (db *DB) scanTriples(ctx context.Context, query string, fn func(id, tag string, v float64)) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, tag string
		var v float64
		if err := rows.Scan(&id, &tag, &v); err != nil {
			return err
		}
		fn(id, tag, v)
	}
	return rows.Err()
}

func (db *DB) scanCounts(ctx context.Context, query string, fn func(id string, j int, v float64) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var j int
		var v float64
		if err := rows.Scan(&id, &j, &v); err != nil {
			return err
		}
		if err := fn(id, j, v); err != nil {
			return err
		}
	}
	return rows.Err()
}
