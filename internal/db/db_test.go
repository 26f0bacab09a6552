package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing-rag/internal/config"
	"filing-rag/internal/models"
)

func newTestStore(t *testing.T) *MetricStore {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, InitDB(context.Background(), db))
	return NewMetricStore(db)
}

func filed(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestMetricStore_LookupAndLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.StoreMetrics(ctx,
		models.MetricRecord{Entity: "aapl", Period: 2022, Name: "Net Income", Value: 100, FiledAt: filed("2022-10-28")},
		models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "net_income", Value: 120, FiledAt: filed("2023-11-03")},
		models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "revenue", Value: 383, FiledAt: filed("2023-11-03")},
	))

	r, err := s.Lookup(ctx, "AAPL", "net income", 2022)
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.Value)
	assert.Equal(t, "AAPL", r.Entity)

	latest, err := s.Latest(ctx, "aapl", models.MetricNetIncome)
	require.NoError(t, err)
	assert.Equal(t, 2023, latest.Period)
	assert.Equal(t, 120.0, latest.Value)

	periods, err := s.Periods(ctx, "AAPL", models.MetricNetIncome)
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2023}, periods)
}

func TestMetricStore_LatestFiledRevisionWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.StoreMetrics(ctx,
		models.MetricRecord{Entity: "MSFT", Period: 2023, Name: "revenue", Value: 211.9, FiledAt: filed("2024-01-15")},
		models.MetricRecord{Entity: "MSFT", Period: 2023, Name: "revenue", Value: 211.0, FiledAt: filed("2023-07-27")},
	))

	r, err := s.Lookup(ctx, "MSFT", "revenue", 2023)
	require.NoError(t, err)
	assert.Equal(t, 211.9, r.Value)
}

func TestMetricStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.StoreMetrics(ctx,
		models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "revenue", Value: 383, FiledAt: filed("2023-11-03")},
	))

	_, err := s.Lookup(ctx, "AAPL", "revenue", 2019)
	var nf *models.MetricNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 2019, nf.Period)

	_, err = s.Latest(ctx, "AAPL", "net_income")
	assert.ErrorIs(t, err, models.ErrMetricNotFound)

	_, err = s.Lookup(ctx, "NOPE", "revenue", 2023)
	assert.ErrorIs(t, err, models.ErrNoEntityData)
}

func TestConnectDB_UnknownDriver(t *testing.T) {
	_, err := ConnectDB(config.DatabaseConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = ConnectDB(config.DatabaseConfig{Driver: "postgres"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestDropMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, DropMetrics(ctx, s.db))
	require.NoError(t, InitDB(ctx, s.db))
	_, err := s.Lookup(ctx, "AAPL", "revenue", 2023)
	assert.ErrorIs(t, err, models.ErrNoEntityData)
}
