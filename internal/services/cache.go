package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tbourn/call-intel-backend/internal/kvstore"
)

// Default lifetimes per record kind.
const (
	DefaultTranscriptTTL = 90 * 24 * time.Hour
	DefaultAnalysisTTL   = 7 * 24 * time.Hour
	DefaultDigestTTL     = 2 * time.Hour
	DefaultKeyPrefix     = "callintel:"
)

// Keys builds the store keys used by the pipeline. All keys share Prefix so
// several deployments can share one backend.
type Keys struct {
	Prefix string
}

func (k Keys) Transcript(callID int64) string {
	return k.Prefix + "transcript:" + strconv.FormatInt(callID, 10)
}

// TranscriptIndex is the chronological index of call IDs scored by start time.
func (k Keys) TranscriptIndex() string { return k.Prefix + "transcripts:by_started_at" }

func (k Keys) Analysis(callID int64) string {
	return k.Prefix + "analysis:" + strconv.FormatInt(callID, 10)
}

// Digest keys a digest by calendar day and period slug.
func (k Keys) Digest(day time.Time, periodSlug string) string {
	return k.Prefix + "digest:" + day.Format("2006-01-02") + ":" + periodSlug
}

// CachePolicy couples the key layout with the TTL for each record kind.
type CachePolicy struct {
	Keys          Keys
	TranscriptTTL time.Duration
	AnalysisTTL   time.Duration
	DigestTTL     time.Duration
}

// DefaultCachePolicy returns the production key prefix and lifetimes.
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		Keys:          Keys{Prefix: DefaultKeyPrefix},
		TranscriptTTL: DefaultTranscriptTTL,
		AnalysisTTL:   DefaultAnalysisTTL,
		DigestTTL:     DefaultDigestTTL,
	}
}

// getJSON loads and decodes a record. kvstore.ErrNotFound is passed through
// unwrapped so callers can tell a miss from a corrupt record.
func getJSON(ctx context.Context, store kvstore.Store, key string, v any) error {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func setJSON(ctx context.Context, store kvstore.Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}
