package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

const postgresBatchSize = 50

// PostgresWriter publishes Gold listings to PostgreSQL.
type PostgresWriter struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgresWriter opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string, maxRetries int, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	pw, err := newPostgresWriter(ctx, db, &utils.RetryConfig{
		MaxAttempts: maxRetries,
		BaseDelay:   time.Second,
		Logger:      logger,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return pw, nil
}

func newPostgresWriter(ctx context.Context, db *sql.DB, retry *utils.RetryConfig, logger *utils.Logger) (*PostgresWriter, error) {
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := &PostgresWriter{db: db, logger: logger}
	if err := pw.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings_gold (
			url                  TEXT PRIMARY KEY,
			title                TEXT,
			model                TEXT,
			series               TEXT,
			year_of_construction DOUBLE PRECISION,
			mileage_km           DOUBLE PRECISION NOT NULL,
			condition            TEXT NOT NULL,
			matching_numbers     TEXT NOT NULL,
			owners               TEXT NOT NULL,
			pts                  SMALLINT NOT NULL DEFAULT 0,
			interior_color       TEXT,
			exterior_color       TEXT,
			transmission         TEXT,
			drive                TEXT,
			car_location         TEXT,
			price                DOUBLE PRECISION,
			currency             VARCHAR(8),
			price_in_eur         DOUBLE PRECISION NOT NULL,
			log_price            DOUBLE PRECISION NOT NULL,
			log_mileage          DOUBLE PRECISION NOT NULL,
			mileage_sq           DOUBLE PRECISION NOT NULL,
			model_category       VARCHAR(32) NOT NULL,
			listing_score        INTEGER NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_gold_category ON listings_gold(model_category);
		CREATE INDEX IF NOT EXISTS idx_listings_gold_price    ON listings_gold(price_in_eur);
		CREATE INDEX IF NOT EXISTS idx_listings_gold_score    ON listings_gold(listing_score);
	`)
	return err
}

// Write upserts every listing keyed on url, in batches inside a single transaction.
func (pw *PostgresWriter) Write(ctx context.Context, listings []*models.FeatureListing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	for i := 0; i < len(listings); i += postgresBatchSize {
		end := min(i+postgresBatchSize, len(listings))
		if err := upsertBatch(ctx, tx, listings[i:end]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: upsert batch at %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}

	pw.logger.Info("[postgres] Upserted %d listings into listings_gold", len(listings))
	return nil
}

func upsertBatch(ctx context.Context, tx *sql.Tx, batch []*models.FeatureListing) error {
	n := len(goldColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*n)

	for idx, l := range batch {
		ph := make([]string, n)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", idx*n+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs, goldArgs(l)...)
	}

	updates := make([]string, 0, n)
	for _, c := range goldColumns[1:] {
		updates = append(updates, c+" = EXCLUDED."+c)
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`
		INSERT INTO listings_gold (%s)
		VALUES %s
		ON CONFLICT (url) DO UPDATE SET %s
	`, strings.Join(goldColumns, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))

	_, err := tx.ExecContext(ctx, query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
