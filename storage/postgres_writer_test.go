package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

func goldListings(n int) []*models.FeatureListing {
	out := make([]*models.FeatureListing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.FeatureListing{
			CleanedListing: models.CleanedListing{
				URL:             fmt.Sprintf("https://example.com/car/%d", i),
				SourceFields:    models.SourceFields{Model: models.StringPtr("911")},
				Condition:       models.Unknown,
				MatchingNumbers: models.Unknown,
				Owners:          "1",
				MileageKM:       float64(i * 1000),
				PriceInEUR:      models.FloatPtr(50000 + float64(i)),
			},
			ModelCategory: "911",
			ListingScore:  10,
		})
	}
	return out
}

func newMockWriter(t *testing.T) (*PostgresWriter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings_gold").WillReturnResult(sqlmock.NewResult(0, 0))

	pw, err := newPostgresWriter(context.Background(), db, &utils.RetryConfig{MaxAttempts: 1}, utils.NewNopLogger())
	require.NoError(t, err)
	return pw, mock
}

func TestPostgresWriterUpsertsInBatches(t *testing.T) {
	pw, mock := newMockWriter(t)

	mock.ExpectBegin()
	mock.ExpectExec("(?s)INSERT INTO listings_gold .* ON CONFLICT \\(url\\) DO UPDATE SET").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO listings_gold").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectCommit()

	require.NoError(t, pw.Write(context.Background(), goldListings(60)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterRollsBackOnError(t *testing.T) {
	pw, mock := newMockWriter(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings_gold").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := pw.Write(context.Background(), goldListings(3))
	assert.ErrorContains(t, err, "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterSkipsEmptyInput(t *testing.T) {
	pw, mock := newMockWriter(t)

	require.NoError(t, pw.Write(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterRetriesPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings_gold").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = newPostgresWriter(context.Background(), db, &utils.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, utils.NewNopLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterGivesUpAfterRetries(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err = newPostgresWriter(context.Background(), db, &utils.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, utils.NewNopLogger())
	assert.ErrorContains(t, err, "postgres ping failed after 2 attempts")
}
