package cache

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/store"
)

// Lookup is the outcome of a cache probe.
type Lookup struct {
	Result   *domain.Result
	Key      string
	Hash     string
	Hit      bool
	Fallback bool
}

// ResultCache fronts the persisted cache_entries table. Concurrent probes
// for the same key are deduplicated with singleflight so only one caller
// hits the database.
type ResultCache struct {
	db     *sql.DB
	repo   *store.CacheRepo
	group  singleflight.Group
	logger *slog.Logger
	nowFn  func() int64
}

// New creates a ResultCache backed by db.
func New(db *sql.DB, logger *slog.Logger) *ResultCache {
	return &ResultCache{
		db:     db,
		repo:   &store.CacheRepo{},
		logger: logger,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// Probe computes the fingerprint for the invocation and checks for a stored
// entry. Stored fallback results are reported but never returned as hits:
// a prior degraded answer must not suppress a real retry.
func (c *ResultCache) Probe(ctx context.Context, caseID, worker, intent string, stage domain.Stage, input any) (Lookup, error) {
	hash, err := HashInput(input)
	if err != nil {
		return Lookup{}, err
	}
	key := Key(caseID, worker, intent, hash, stage)

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.repo.Get(ctx, c.db, key)
	})
	if err != nil {
		return Lookup{Key: key, Hash: hash}, err
	}

	entry, _ := v.(*store.CacheEntry)
	if entry == nil {
		return Lookup{Key: key, Hash: hash}, nil
	}
	if entry.IsFallback {
		c.logger.Debug("cache holds fallback entry, treating as miss",
			"case_id", caseID, "worker", worker, "cache_key", key)
		return Lookup{Key: key, Hash: hash, Fallback: true}, nil
	}

	result, err := entry.Decode()
	if err != nil {
		c.logger.Warn("cache entry failed to decode, treating as miss",
			"case_id", caseID, "worker", worker, "error", err)
		return Lookup{Key: key, Hash: hash}, nil
	}
	return Lookup{Result: result, Key: key, Hash: hash, Hit: true}, nil
}

// Store persists an invocation result under the given key. Fallback results
// are stored too, for audit, but Probe will not serve them.
func (c *ResultCache) Store(ctx context.Context, key, hash, caseID, worker string, result *domain.Result, inputSnapshot, outputSnapshot string) error {
	resultJSON, err := domain.EncodeResult(result)
	if err != nil {
		return err
	}
	return c.repo.Put(ctx, c.db, store.CacheEntry{
		CacheKey:       key,
		CaseID:         caseID,
		Worker:         worker,
		InputHash:      hash,
		SchemaVersion:  SchemaVersion,
		ResultJSON:     resultJSON,
		InputSnapshot:  inputSnapshot,
		OutputSnapshot: outputSnapshot,
		IsFallback:     result.Fallback,
		CreatedAt:      c.nowFn(),
	})
}
