package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"filing-rag/internal/config"
	"filing-rag/internal/metrics"
	"filing-rag/internal/models"
)

// Metric is one revision of a metric fact. Every filing is kept; reads pick
// the latest filed_at.
type Metric struct {
	bun.BaseModel `bun:"table:metrics,alias:m"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Entity        string    `bun:"entity,notnull"`
	Period        int       `bun:"period,notnull"`
	Name          string    `bun:"name,notnull"`
	Value         float64   `bun:"value,notnull"`
	FiledAt       time.Time `bun:"filed_at,notnull"`
	Source        string    `bun:"source"`
}

func (m Metric) Record() models.MetricRecord {
	return models.MetricRecord{
		Entity:  m.Entity,
		Period:  m.Period,
		Name:    m.Name,
		Value:   m.Value,
		FiledAt: m.FiledAt.UTC(),
		Source:  m.Source,
	}
}

const defaultSQLiteDSN = "file:metrics.db?cache=shared"

// ConnectDB opens the database named by cfg.Driver: "postgres" (pgdriver),
// "pq" (lib/pq) or "sqlite" (modernc).
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.DSN == "" {
			return nil, models.ConfigError("database dsn is required for postgres")
		}
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case "pq":
		if cfg.DSN == "" {
			return nil, models.ConfigError("database dsn is required for pq")
		}
		return sql.Open("postgres", cfg.DSN)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		return sqldb, nil
	default:
		return nil, models.ConfigError("unknown database driver %q", cfg.Driver)
	}
}

func NewDB(sqldb *sql.DB, cfg config.DatabaseConfig) *bun.DB {
	var db *bun.DB
	if cfg.Driver == "sqlite" {
		db = bun.NewDB(sqldb, sqlitedialect.New())
	} else {
		db = bun.NewDB(sqldb, pgdialect.New())
	}
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// Open connects and wraps the connection in a bun.DB.
func Open(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewDB(sqldb, cfg), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*Metric)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().Model((*Metric)(nil)).
		Index("metrics_lookup_idx").
		Column("entity", "name", "period").
		IfNotExists().
		Exec(ctx)
	return err
}

func DropMetrics(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Metric)(nil)).IfExists().Exec(ctx)
	return err
}

// MetricStore is a metrics.Store on top of bun.
type MetricStore struct {
	db *bun.DB
}

var _ metrics.Store = (*MetricStore)(nil)

func NewMetricStore(db *bun.DB) *MetricStore {
	return &MetricStore{db: db}
}

// StoreMetrics inserts records as new revisions.
func (s *MetricStore) StoreMetrics(ctx context.Context, records ...models.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]Metric, len(records))
	for i, r := range records {
		rows[i] = Metric{
			Entity:  metrics.NormalizeEntity(r.Entity),
			Period:  r.Period,
			Name:    metrics.NormalizeName(r.Name),
			Value:   r.Value,
			FiledAt: r.FiledAt.UTC(),
			Source:  r.Source,
		}
	}
	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (s *MetricStore) Lookup(ctx context.Context, entity, metric string, period int) (models.MetricRecord, error) {
	entity, metric = metrics.NormalizeEntity(entity), metrics.NormalizeName(metric)
	var m Metric
	err := s.db.NewSelect().
		Model(&m).
		Where("entity = ?", entity).
		Where("name = ?", metric).
		Where("period = ?", period).
		OrderExpr("filed_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.requireEntity(ctx, entity); err != nil {
			return models.MetricRecord{}, err
		}
		return models.MetricRecord{}, &models.MetricNotFoundError{Entity: entity, Metric: metric, Period: period}
	}
	if err != nil {
		return models.MetricRecord{}, fmt.Errorf("metric lookup: %w", err)
	}
	return m.Record(), nil
}

func (s *MetricStore) Latest(ctx context.Context, entity, metric string) (models.MetricRecord, error) {
	periods, err := s.Periods(ctx, entity, metric)
	if err != nil {
		return models.MetricRecord{}, err
	}
	if len(periods) == 0 {
		return models.MetricRecord{}, &models.MetricNotFoundError{
			Entity: metrics.NormalizeEntity(entity),
			Metric: metrics.NormalizeName(metric),
		}
	}
	return s.Lookup(ctx, entity, metric, periods[len(periods)-1])
}

func (s *MetricStore) Periods(ctx context.Context, entity, metric string) ([]int, error) {
	entity, metric = metrics.NormalizeEntity(entity), metrics.NormalizeName(metric)
	if err := s.requireEntity(ctx, entity); err != nil {
		return nil, err
	}
	var periods []int
	err := s.db.NewSelect().
		Model((*Metric)(nil)).
		ColumnExpr("DISTINCT period").
		Where("entity = ?", entity).
		Where("name = ?", metric).
		OrderExpr("period ASC").
		Scan(ctx, &periods)
	if err != nil {
		return nil, fmt.Errorf("metric periods: %w", err)
	}
	return periods, nil
}

func (s *MetricStore) requireEntity(ctx context.Context, entity string) error {
	exists, err := s.db.NewSelect().Model((*Metric)(nil)).Where("entity = ?", entity).Exists(ctx)
	if err != nil {
		return fmt.Errorf("entity lookup: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrNoEntityData, entity)
	}
	return nil
}
