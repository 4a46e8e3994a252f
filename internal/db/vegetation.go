package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ctessum/geom"

	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// ImportVegetation replaces the stored vegetation records with d.
func (db *DB) ImportVegetation(ctx context.Context, d *records.VegetationData) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vegetation_cells`); err != nil {
			return err
		}
		if err := replaceTaxa(ctx, tx, datasetVegetation, d.Mean.Taxa); err != nil {
			return err
		}
		for i, p := range d.Locations {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vegetation_cells (cell_idx, x, y, srs) VALUES (?, ?, ?, ?)`,
				i, p.X, p.Y, d.SRS); err != nil {
				return fmt.Errorf("insert vegetation record %d: %w", i, err)
			}
			for j, mean := range d.Mean.Values[i] {
				var sd sql.NullFloat64
				if d.SD != nil {
					sd = sql.NullFloat64{Float64: d.SD.Values[i][j], Valid: true}
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO vegetation_values (cell_idx, taxon_idx, mean, sd) VALUES (?, ?, ?, ?)`,
					i, j, mean, sd); err != nil {
					return fmt.Errorf("insert vegetation values %d: %w", i, err)
				}
			}
		}
		return nil
	})
}

// LoadVegetation reads the stored vegetation records back in import order.
// SD is set only when every stored value carries an uncertainty.
func (db *DB) LoadVegetation(ctx context.Context) (*records.VegetationData, error) {
	taxa, err := db.loadTaxa(ctx, datasetVegetation)
	if err != nil {
		return nil, fmt.Errorf("load vegetation taxa: %w", err)
	}
	d := &records.VegetationData{
		Mean: taxonomy.NewTable(records.VegetationIDColumns, taxa),
		SD:   taxonomy.NewTable(records.VegetationIDColumns, taxa),
	}

	rows, err := db.QueryContext(ctx, `SELECT x, y, srs FROM vegetation_cells ORDER BY cell_idx`)
	if err != nil {
		return nil, fmt.Errorf("load vegetation cells: %w", err)
	}
	for rows.Next() {
		var p geom.Point
		if err := rows.Scan(&p.X, &p.Y, &d.SRS); err != nil {
			rows.Close()
			return nil, err
		}
		ids := []string{formatCoord(p.X), formatCoord(p.Y)}
		d.Locations = append(d.Locations, p)
		d.Mean.IDs = append(d.Mean.IDs, ids)
		d.Mean.Values = append(d.Mean.Values, make([]float64, len(taxa)))
		d.SD.IDs = append(d.SD.IDs, append([]string(nil), ids...))
		d.SD.Values = append(d.SD.Values, make([]float64, len(taxa)))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `SELECT cell_idx, taxon_idx, mean, sd FROM vegetation_values`)
	if err != nil {
		return nil, fmt.Errorf("load vegetation values: %w", err)
	}
	defer rows.Close()
	complete := true
	n := 0
	for rows.Next() {
		var i, j int
		var mean float64
		var sd sql.NullFloat64
		if err := rows.Scan(&i, &j, &mean, &sd); err != nil {
			return nil, err
		}
		if i < 0 || i >= len(d.Locations) || j < 0 || j >= len(taxa) {
			return nil, fmt.Errorf("vegetation value at (%d, %d) outside %d x %d", i, j, len(d.Locations), len(taxa))
		}
		d.Mean.Values[i][j] = mean
		d.SD.Values[i][j] = sd.Float64
		complete = complete && sd.Valid
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !complete || n == 0 {
		d.SD = nil
	}
	return d, nil
}
