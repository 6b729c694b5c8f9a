package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// EntryRecord is one row in the cache index: bookkeeping for a stored
// entry, used for stats and stale pruning. The index is advisory — losing
// it never loses cached data.
type EntryRecord struct {
	Key        string `gorm:"primaryKey;type:varchar(64)"`
	Size       int64
	Hits       int64
	CreatedAt  time.Time
	LastAccess time.Time `gorm:"index"`
}

// TableName overrides the gorm table name.
func (EntryRecord) TableName() string {
	return "cache_entries"
}

// Index is a sqlite-backed ledger of cache entries. All operations are
// best-effort: failures are logged and swallowed so the index can never
// fail a transformation.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenIndex opens (creating if needed) the index database at path.
func OpenIndex(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	if err := db.AutoMigrate(&EntryRecord{}); err != nil {
		return nil, fmt.Errorf("migrating cache index: %w", err)
	}
	return &Index{db: db, logger: logger.With(slog.String("component", "cache-index"))}, nil
}

// Touch upserts a record for the key, bumping hit count and last access.
func (i *Index) Touch(key string, size int64) {
	now := time.Now()
	var rec EntryRecord
	err := i.db.Where("key = ?", key).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = i.db.Create(&EntryRecord{
			Key:        key,
			Size:       size,
			Hits:       1,
			CreatedAt:  now,
			LastAccess: now,
		}).Error
	case err == nil:
		err = i.db.Model(&rec).Updates(map[string]any{
			"size":        size,
			"hits":        rec.Hits + 1,
			"last_access": now,
		}).Error
	}
	if err != nil {
		i.logger.Warn("index touch failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Stats summarizes the index.
type Stats struct {
	Entries   int64
	TotalSize int64
	TotalHits int64
}

// Stats returns aggregate entry statistics.
func (i *Index) Stats() (Stats, error) {
	var s Stats
	if err := i.db.Model(&EntryRecord{}).Count(&s.Entries).Error; err != nil {
		return s, fmt.Errorf("counting index entries: %w", err)
	}
	row := i.db.Model(&EntryRecord{}).
		Select("COALESCE(SUM(size),0), COALESCE(SUM(hits),0)").
		Row()
	if err := row.Scan(&s.TotalSize, &s.TotalHits); err != nil {
		return s, fmt.Errorf("summing index entries: %w", err)
	}
	return s, nil
}

// StaleKeys returns keys not accessed since the cutoff.
func (i *Index) StaleKeys(cutoff time.Time) ([]string, error) {
	var keys []string
	err := i.db.Model(&EntryRecord{}).
		Where("last_access < ?", cutoff).
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("querying stale keys: %w", err)
	}
	return keys, nil
}

// Forget removes records for the given keys.
func (i *Index) Forget(keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := i.db.Delete(&EntryRecord{}, "key IN ?", keys).Error; err != nil {
		i.logger.Warn("index forget failed", slog.String("error", err.Error()))
	}
}
