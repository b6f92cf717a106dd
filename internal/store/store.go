// Package store persists validated records through gorm on PostgreSQL or
// SQLite. Records of every kind share one table keyed by kind and business
// key; the wire-format JSON is kept as the payload.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/hyperifyio/goradar/internal/record"
)

// ErrNotFound is returned by FindByCode when no record matches.
var ErrNotFound = errors.New("record not found")

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Row is the stored form of a record.
type Row struct {
	Kind             string         `gorm:"primaryKey;size:32"`
	Key              string         `gorm:"primaryKey;size:128"`
	SourceURL        string         `gorm:"size:2048"`
	ExtractorVersion string         `gorm:"size:64"`
	ScrapedAt        time.Time      `gorm:"index"`
	Payload          datatypes.JSON `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Row) TableName() string { return "scraped_records" }

// Repository saves and looks up records.
type Repository struct {
	db *gorm.DB
}

// Open connects with driver to dsn and migrates the schema. An empty
// driver is inferred from the dsn: postgres:// URLs and key=value strings
// use PostgreSQL, anything else is a SQLite path.
func Open(driver, dsn string) (*Repository, error) {
	if driver == "" {
		driver = inferDriver(dsn)
	}
	var dial gorm.Dialector
	switch driver {
	case DriverPostgres:
		dial = postgres.Open(dsn)
	case DriverSQLite:
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(zerologWriter{}, gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Repository{db: db}, nil
}

func inferDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return DriverPostgres
	}
	return DriverSQLite
}

type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec record.Record) (Row, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Row{}, fmt.Errorf("encode %s %s: %w", rec.Kind(), rec.Key(), err)
	}
	m := rec.Metadata()
	return Row{
		Kind:             string(rec.Kind()),
		Key:              rec.Key(),
		SourceURL:        m.SourceURL,
		ExtractorVersion: m.ExtractorVersion,
		ScrapedAt:        m.ScrapedAt,
		Payload:          datatypes.JSON(payload),
	}, nil
}

func (row Row) record() (record.Record, error) {
	return record.Decode(record.Kind(row.Kind), row.Payload)
}

// Save upserts one record by kind and business key.
func (r *Repository) Save(ctx context.Context, rec record.Record) error {
	return r.SaveAll(ctx, []record.Record{rec})
}

// SaveAll upserts records in one transaction. A later record with the same
// key replaces an earlier one.
func (r *Repository) SaveAll(ctx context.Context, recs []record.Record) error {
	if len(recs) == 0 {
		return nil
	}
	byKey := make(map[[2]string]int, len(recs))
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		row, err := toRow(rec)
		if err != nil {
			return err
		}
		k := [2]string{row.Kind, row.Key}
		if i, ok := byKey[k]; ok {
			rows[i] = row
			continue
		}
		byKey[k] = len(rows)
		rows = append(rows, row)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"source_url", "extractor_version", "scraped_at", "payload", "updated_at"}),
		}).CreateInBatches(&rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	log.Debug().Int("records", len(rows)).Msg("records saved")
	return nil
}

// FindByCode returns the record of kind whose business key is code.
func (r *Repository) FindByCode(ctx context.Context, kind record.Kind, code string) (record.Record, error) {
	var row Row
	err := r.db.WithContext(ctx).Where("kind = ? AND key = ?", string(kind), code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, code)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", kind, code, err)
	}
	return row.record()
}

// List returns the records of kind ordered by key, or of every kind when
// kind is empty.
func (r *Repository) List(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	q := r.db.WithContext(ctx).Order("kind").Order("key")
	if kind != "" {
		q = q.Where("kind = ?", string(kind))
	}
	var rows []Row
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
