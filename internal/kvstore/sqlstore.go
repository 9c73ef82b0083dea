package kvstore

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// record is one key/value row. A nil ExpiresAt never expires.
type record struct {
	Key       string     `gorm:"type:varchar(255);primaryKey"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (record) TableName() string { return "kv_records" }

// indexEntry is one member of a sorted index.
type indexEntry struct {
	IndexKey string  `gorm:"type:varchar(255);primaryKey;index:idx_kv_index_score,priority:1"`
	Member   string  `gorm:"type:varchar(255);primaryKey"`
	Score    float64 `gorm:"not null;index:idx_kv_index_score,priority:2"`
}

// TableName implements the GORM tabler interface.
func (indexEntry) TableName() string { return "kv_index_entries" }

// SQLStore implements Store on top of a GORM handle. Expired records are
// hidden from reads and removed by PurgeExpired.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs, installs
// the OpenTelemetry plugin and migrates the store schema.
func OpenSQLite(path string) (*SQLStore, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return NewSQLStore(db)
}

// NewSQLStore wraps an existing GORM handle and migrates the schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&record{}, &indexEntry{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec record
	err := s.db.WithContext(ctx).
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.now().UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	rec := record{Key: key, Value: value}
	if ttl > 0 {
		exp := s.now().UTC().Add(ttl)
		rec.ExpiresAt = &exp
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).
		Create(&rec).Error
}

// IndexAdd implements Store.
func (s *SQLStore) IndexAdd(ctx context.Context, index, member string, score float64) error {
	e := indexEntry{IndexKey: index, Member: member, Score: score}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "index_key"}, {Name: "member"}},
			DoUpdates: clause.AssignmentColumns([]string{"score"}),
		}).
		Create(&e).Error
}

// IndexRevRange implements Store.
func (s *SQLStore) IndexRevRange(ctx context.Context, index string, start, stop int64) ([]string, error) {
	if start < 0 {
		start = 0
	}
	if stop >= 0 && stop < start {
		return []string{}, nil
	}
	q := s.db.WithContext(ctx).Model(&indexEntry{}).
		Where("index_key = ?", index).
		Order("score DESC").Order("member DESC").
		Offset(int(start))
	if stop >= 0 {
		q = q.Limit(int(stop - start + 1))
	}
	out := []string{}
	if err := q.Pluck("member", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// IndexRevRangeByScore implements Store.
func (s *SQLStore) IndexRevRangeByScore(ctx context.Context, index string, min, max float64) ([]string, error) {
	if min > max {
		return []string{}, nil
	}
	q := s.db.WithContext(ctx).Model(&indexEntry{}).Where("index_key = ?", index)
	if !math.IsInf(min, -1) {
		q = q.Where("score >= ?", min)
	}
	if !math.IsInf(max, 1) {
		q = q.Where("score <= ?", max)
	}
	out := []string{}
	if err := q.Order("score DESC").Order("member DESC").Pluck("member", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// IndexCount implements Store.
func (s *SQLStore) IndexCount(ctx context.Context, index string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&indexEntry{}).Where("index_key = ?", index).Count(&n).Error
	return n, err
}

// IndexRemove implements Store.
func (s *SQLStore) IndexRemove(ctx context.Context, index string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("index_key = ? AND member IN ?", index, members).
		Delete(&indexEntry{})
	return res.RowsAffected, res.Error
}

// PurgeExpired deletes records whose TTL has elapsed and returns how many
// rows were removed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&record{})
	return res.RowsAffected, res.Error
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
