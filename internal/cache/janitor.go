package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor prunes cache entries that have not been used within the retention
// window, along with blobs no surviving entry references. It runs on a cron
// schedule or on demand via Prune.
type Janitor struct {
	cache     *ArtifactCache
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewJanitor creates a janitor over the given cache. The cache must have an
// index attached; staleness is judged by the index's last-access times.
func NewJanitor(c *ArtifactCache, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	if c.Index() == nil {
		return nil, fmt.Errorf("janitor requires a cache index")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cache:     c,
		retention: retention,
		logger:    logger.With(slog.String("component", "cache-janitor")),
	}, nil
}

// Start schedules pruning with the given cron expression.
func (j *Janitor) Start(schedule string) error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.Prune(context.Background()); err != nil {
			j.logger.Error("scheduled prune failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling janitor: %w", err)
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for a running prune to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Entries int
	Blobs   int
}

// Prune removes entries stale per the retention window, then sweeps blobs
// that no surviving entry references.
func (j *Janitor) Prune(ctx context.Context) (PruneResult, error) {
	var result PruneResult

	cutoff := time.Now().Add(-j.retention)
	stale, err := j.cache.Index().StaleKeys(cutoff)
	if err != nil {
		return result, err
	}

	removed := make([]string, 0, len(stale))
	for _, key := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := j.cache.RemoveEntry(key); err != nil {
			j.logger.Warn("failed to remove stale entry",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed = append(removed, key)
		result.Entries++
	}
	j.cache.Index().Forget(removed)

	// Sweep blobs nothing references anymore.
	survivors, err := j.cache.EntryKeys()
	if err != nil {
		return result, err
	}
	referenced := make(map[string]bool)
	for _, key := range survivors {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry, ok := j.cache.Get(key)
		if !ok {
			continue
		}
		for _, snap := range entry.Assets {
			referenced[snap.OutputHash] = true
		}
	}

	hashes, err := j.cache.blobHashes()
	if err != nil {
		return result, err
	}
	for _, hash := range hashes {
		if referenced[hash] {
			continue
		}
		if err := j.cache.RemoveBlob(hash); err == nil {
			result.Blobs++
		}
	}

	j.logger.Info("cache prune complete",
		slog.Int("entries_removed", result.Entries),
		slog.Int("blobs_removed", result.Blobs),
	)
	return result, nil
}
