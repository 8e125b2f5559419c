package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

// SQLiteWriter publishes Gold listings to a local SQLite database file that the
// dashboard can open without a server.
type SQLiteWriter struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewSQLiteWriter opens (or creates) the database at path and runs migrations.
func NewSQLiteWriter(ctx context.Context, path string, logger *utils.Logger) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	sw := &SQLiteWriter{db: db, logger: logger}
	if err := sw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return sw, nil
}

func (sw *SQLiteWriter) migrate(ctx context.Context) error {
	_, err := sw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings_gold (
			url                  TEXT PRIMARY KEY,
			title                TEXT,
			model                TEXT,
			series               TEXT,
			year_of_construction REAL,
			mileage_km           REAL NOT NULL,
			condition            TEXT NOT NULL,
			matching_numbers     TEXT NOT NULL,
			owners               TEXT NOT NULL,
			pts                  INTEGER NOT NULL DEFAULT 0,
			interior_color       TEXT,
			exterior_color       TEXT,
			transmission         TEXT,
			drive                TEXT,
			car_location         TEXT,
			price                REAL,
			currency             TEXT,
			price_in_eur         REAL NOT NULL,
			log_price            REAL NOT NULL,
			log_mileage          REAL NOT NULL,
			mileage_sq           REAL NOT NULL,
			model_category       TEXT NOT NULL,
			listing_score        INTEGER NOT NULL,
			updated_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_listings_gold_category ON listings_gold(model_category);
	`)
	return err
}

// Write upserts every listing keyed on url in a single transaction.
func (sw *SQLiteWriter) Write(ctx context.Context, listings []*models.FeatureListing) error {
	if len(listings) == 0 {
		return nil
	}

	updates := make([]string, 0, len(goldColumns))
	for _, c := range goldColumns[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	updates = append(updates, "updated_at = CURRENT_TIMESTAMP")
	query := fmt.Sprintf(
		"INSERT INTO listings_gold (%s) VALUES (%s) ON CONFLICT(url) DO UPDATE SET %s",
		strings.Join(goldColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?,", len(goldColumns)), ","),
		strings.Join(updates, ", "),
	)

	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		if _, err := stmt.ExecContext(ctx, goldArgs(l)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: upsert %s: %w", l.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	sw.logger.Info("[sqlite] Upserted %d listings into listings_gold", len(listings))
	return nil
}

// CountByCategory returns the number of stored listings per model category.
func (sw *SQLiteWriter) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := sw.db.QueryContext(ctx, `
		SELECT model_category, COUNT(*) FROM listings_gold GROUP BY model_category
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: count by category: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}
		out[cat] = n
	}
	return out, rows.Err()
}

func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}
