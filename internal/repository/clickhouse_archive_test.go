package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"ContagionRadar/internal/domain/models"
	pkgch "ContagionRadar/pkg/clickhouse"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockArchive(t *testing.T) (*ClickHouseArchive, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClickHouseArchive(pkgch.NewClientWithDB(db), "contagion", nil), mock
}

func TestArchiveSchemaTargetsDatabase(t *testing.T) {
	stmts := ArchiveSchema("radar")
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS radar")
	assert.Contains(t, stmts[1], "radar.observations")
	assert.Contains(t, stmts[2], "radar.contagion_events")
	assert.Contains(t, stmts[3], "radar.sector_rotations")
}

func TestStoreObservationsInsertsOneBatch(t *testing.T) {
	archive, mock := newMockArchive(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	price := 2.5
	batch := []models.AssetObservation{
		{Symbol: "ETH", Chain: " Ethereum", Sector: "L1", Timestamp: ts, Sentiment: 0.4, Volume: 10, Price: &price},
		{Symbol: "ARB", Chain: "arbitrum", Timestamp: ts.Add(time.Minute), Sentiment: -0.1, Volume: 3},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO contagion.observations")
	prep.ExpectExec().
		WithArgs(ts, "ETH", "ethereum", "l1", 0.4, 10.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(ts.Add(time.Minute), "ARB", "arbitrum", "", -0.1, 3.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, archive.StoreObservations(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreObservationsEmptyBatchIsNoop(t *testing.T) {
	archive, mock := newMockArchive(t)
	require.NoError(t, archive.StoreObservations(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationArgsNullPrice(t *testing.T) {
	args := observationArgs(models.AssetObservation{Symbol: "SOL"})
	require.Len(t, args, 7)
	v, err := args[6].(driver.Valuer).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	price := 1.0
	withPrice := observationArgs(models.AssetObservation{Symbol: "SOL", Price: &price})
	v, err = withPrice[6].(driver.Valuer).Value()
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestStoreEventWritesPayload(t *testing.T) {
	archive, mock := newMockArchive(t)
	sig := models.ContagionSignal{
		Event: models.ContagionEvent{
			ID:          "evt-1",
			OriginAsset: "ETH",
			OriginChain: "ethereum",
			Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Reach:       2,
			Velocity:    0.6,
			Polarity:    models.PolarityNegative,
		},
		Severity:   models.SeverityMedium,
		Confidence: 0.7,
	}

	mock.ExpectExec("INSERT INTO contagion.contagion_events").
		WithArgs(sig.Event.Timestamp, "evt-1", "ETH", "ethereum", "medium", "negative", uint32(2), 0.6, 0.7, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, archive.PublishContagion(context.Background(), sig))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSinceScansNullablePrice(t *testing.T) {
	archive, mock := newMockArchive(t)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"ts", "symbol", "chain", "sector", "sentiment", "volume", "price"}).
		AddRow(since.Add(time.Minute), "ETH", "ethereum", "l1", 0.2, 5.0, 3100.5).
		AddRow(since.Add(2*time.Minute), "ARB", "arbitrum", "l2", -0.3, 1.0, nil)
	mock.ExpectQuery("FROM contagion.observations").
		WithArgs(since, 100).
		WillReturnRows(rows)

	got, err := archive.LoadSince(context.Background(), since, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ETH", got[0].Symbol)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 3100.5, *got[0].Price)
	assert.Nil(t, got[1].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}
