package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"filing-rag/internal/models"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func sampleStore() *MemoryStore {
	return NewMemoryStore(
		models.MetricRecord{Entity: "aapl", Period: 2022, Name: "Net Income", Value: 99.8, FiledAt: day("2022-10-28")},
		models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "net_income", Value: 97.0, FiledAt: day("2023-11-03")},
		models.MetricRecord{Entity: "AAPL", Period: 2021, Name: "net_income", Value: 94.7, FiledAt: day("2021-10-29")},
		models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "revenue", Value: 383.3, FiledAt: day("2023-11-03")},
	)
}

func TestMemoryStore_Lookup(t *testing.T) {
	ctx := context.Background()
	s := sampleStore()

	r, err := s.Lookup(ctx, "AAPL", "net income", 2022)
	require.NoError(t, err)
	assert.Equal(t, 99.8, r.Value)
	assert.Equal(t, "AAPL", r.Entity)
}

func TestMemoryStore_LatestIsMaxPeriod(t *testing.T) {
	r, err := sampleStore().Latest(context.Background(), "AAPL", models.MetricNetIncome)
	require.NoError(t, err)
	assert.Equal(t, 2023, r.Period)
	assert.Equal(t, 97.0, r.Value)
}

func TestMemoryStore_MissingPeriodVsUnknownEntity(t *testing.T) {
	ctx := context.Background()
	s := sampleStore()

	_, err := s.Lookup(ctx, "AAPL", models.MetricNetIncome, 1999)
	var nf *models.MetricNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1999, nf.Period)
	assert.ErrorIs(t, err, models.ErrMetricNotFound)
	assert.NotErrorIs(t, err, models.ErrNoEntityData)

	_, err = s.Lookup(ctx, "ZZZZ", models.MetricNetIncome, 2023)
	assert.ErrorIs(t, err, models.ErrNoEntityData)
	assert.NotErrorIs(t, err, models.ErrMetricNotFound)

	_, err = s.Latest(ctx, "AAPL", "ebitda")
	assert.ErrorIs(t, err, models.ErrMetricNotFound)
}

func TestMemoryStore_LatestFiledWins(t *testing.T) {
	ctx := context.Background()
	s := sampleStore()

	s.Put(models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "net_income", Value: 96.9, FiledAt: day("2024-02-01")})
	r, err := s.Lookup(ctx, "AAPL", "net_income", 2023)
	require.NoError(t, err)
	assert.Equal(t, 96.9, r.Value, "amendment replaces original")

	s.Put(models.MetricRecord{Entity: "AAPL", Period: 2023, Name: "net_income", Value: 1, FiledAt: day("2023-01-01")})
	r, err = s.Lookup(ctx, "AAPL", "net_income", 2023)
	require.NoError(t, err)
	assert.Equal(t, 96.9, r.Value, "older filing is ignored")
}

func TestMemoryStore_Periods(t *testing.T) {
	periods, err := sampleStore().Periods(context.Background(), "AAPL", "net_income")
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2022, 2023}, periods)
}

func TestLoadWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "AAPL"))
	require.NoError(t, f.SetSheetRow("AAPL", "A1", &[]any{"Period", "Metric", "Value", "Filed At"}))
	require.NoError(t, f.SetSheetRow("AAPL", "A2", &[]any{2023, "Net Income", "$96,995", "2023-11-03"}))
	require.NoError(t, f.SetSheetRow("AAPL", "A3", &[]any{2023, "Revenue", "383,285", "2023-11-03"}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]any{"Entity", "Period", "Metric", "Value"}))
	require.NoError(t, f.SetSheetRow("Other", "A2", &[]any{"msft", 2023, "net income", "(12.5)"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := LoadWorkbook(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "AAPL", records[0].Entity)
	assert.Equal(t, "net_income", records[0].Name)
	assert.Equal(t, 96995.0, records[0].Value)
	assert.Equal(t, 2023, records[0].FiledAt.Year())
	assert.Equal(t, "MSFT", records[2].Entity)
	assert.Equal(t, -12.5, records[2].Value)
	assert.True(t, records[2].FiledAt.IsZero())
}

func TestLoadWorkbook_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Period", "Value"}))
	require.NoError(t, f.SaveAs(path))

	_, err := LoadWorkbook(path)
	assert.Error(t, err)
}
