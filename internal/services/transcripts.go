// Package services – TranscriptService
//
// TranscriptService persists call transcripts under a per-call key and keeps a
// chronological index of call IDs scored by start time. Keyword search is a
// bounded scan over that index: candidates are read in batches, filtered,
// counted, and ranked by number of mentions.
//
// Storage is best-effort. Store never fails the caller; it reports a typed
// outcome so the ingest path can decide whether to redeliver.
package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/kvstore"
	"github.com/tbourn/call-intel-backend/internal/observability"
)

const (
	DefaultSearchLimit     = 50
	DefaultSearchScanLimit = 500
	DefaultRecentLimit     = 20
	searchBatchSize        = 20
	excerptRadius          = 80
	excerptMarker          = "..."
)

// StoreStatus is the result class of a Store call.
type StoreStatus string

const (
	StoreStatusStored   StoreStatus = "stored"
	StoreStatusDegraded StoreStatus = "degraded"
)

// StoreOutcome reports what Store managed to persist. Err carries the cause
// when Status is StoreStatusDegraded. IndexSkipped is set when the record may
// exist but is not reachable through the chronological index.
type StoreOutcome struct {
	Status       StoreStatus `json:"status"`
	IndexSkipped bool        `json:"indexSkipped"`
	Err          error       `json:"-"`
}

// Degraded reports whether any part of the write failed.
func (o StoreOutcome) Degraded() bool { return o.Status == StoreStatusDegraded }

// SearchOptions narrows a keyword search. Dates are calendar days; ToDate is
// inclusive.
type SearchOptions struct {
	FromDate  *time.Time
	ToDate    *time.Time
	AgentName string
	Direction string
	Limit     int
}

// Filtered reports whether any date, agent or direction filter is set.
func (o SearchOptions) Filtered() bool {
	return o.FromDate != nil || o.ToDate != nil || o.AgentName != "" || o.Direction != ""
}

// SearchResult is one matching transcript without its full body.
type SearchResult struct {
	CallID      int64  `json:"callId"`
	AgentName   string `json:"agentName"`
	ContactName string `json:"contactName"`
	Direction   string `json:"direction"`
	Duration    int    `json:"duration"`
	StartedAt   int64  `json:"startedAt"`
	MatchCount  int    `json:"matchCount"`
	Excerpt     string `json:"excerpt"`
}

// TranscriptService stores, fetches and searches call transcripts.
type TranscriptService struct {
	KV    kvstore.Store
	Cache CachePolicy

	// ScanLimit caps the candidates read by an undated search.
	ScanLimit int
	// Location resolves the calendar days of search date filters.
	Location *time.Location

	Log zerolog.Logger
	Now func() time.Time
}

// NewTranscriptService constructs a TranscriptService with default limits.
func NewTranscriptService(store kvstore.Store, cache CachePolicy, log zerolog.Logger) *TranscriptService {
	return &TranscriptService{
		KV:        store,
		Cache:     cache,
		ScanLimit: DefaultSearchScanLimit,
		Location:  time.UTC,
		Log:       log,
		Now:       time.Now,
	}
}

func (s *TranscriptService) tracer() trace.Tracer {
	return otel.Tracer("services/TranscriptService")
}

// Store writes the transcript for meta.CallID, replacing any previous record,
// and indexes it by start time. WordCount and CreatedAt are always derived
// here. A failed record write skips the index write. Index members outlive
// expired records; reads prune them (see fetchBatch).
func (s *TranscriptService) Store(ctx context.Context, meta domain.CallMeta, text string) StoreOutcome {
	ctx, span := s.tracer().Start(ctx, "Store",
		trace.WithAttributes(attribute.Int64("call.id", meta.CallID)),
	)
	defer span.End()

	rec := domain.Transcript{
		CallID:      meta.CallID,
		AgentName:   meta.AgentName,
		ContactName: meta.ContactName,
		Duration:    meta.Duration,
		Direction:   meta.Direction,
		StartedAt:   meta.StartedAt,
		Transcript:  text,
		WordCount:   domain.CountWords(text),
		CreatedAt:   s.Now().UTC().Format(time.RFC3339),
	}

	if err := setJSON(ctx, s.KV, s.Cache.Keys.Transcript(meta.CallID), rec, s.Cache.TranscriptTTL); err != nil {
		s.Log.Warn().Err(err).Int64("call_id", meta.CallID).Msg("transcript store failed")
		observability.ObserveTranscriptStore(observability.StoreDegraded)
		span.RecordError(err)
		return StoreOutcome{Status: StoreStatusDegraded, IndexSkipped: true, Err: err}
	}

	index := s.Cache.Keys.TranscriptIndex()
	if err := s.KV.IndexAdd(ctx, index, strconv.FormatInt(meta.CallID, 10), float64(meta.StartedAt)); err != nil {
		s.Log.Warn().Err(err).Int64("call_id", meta.CallID).Msg("transcript index update failed")
		observability.ObserveTranscriptStore(observability.StoreDegraded)
		span.RecordError(err)
		return StoreOutcome{Status: StoreStatusDegraded, IndexSkipped: true, Err: err}
	}

	observability.ObserveTranscriptStore(observability.StoreStored)
	return StoreOutcome{Status: StoreStatusStored}
}

// FetchByID returns the stored transcript or ErrTranscriptNotFound.
func (s *TranscriptService) FetchByID(ctx context.Context, callID int64) (*domain.Transcript, error) {
	ctx, span := s.tracer().Start(ctx, "FetchByID",
		trace.WithAttributes(attribute.Int64("call.id", callID)),
	)
	defer span.End()

	var rec domain.Transcript
	if err := getJSON(ctx, s.KV, s.Cache.Keys.Transcript(callID), &rec); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of indexed transcripts.
func (s *TranscriptService) Count(ctx context.Context) (int64, error) {
	return s.KV.IndexCount(ctx, s.Cache.Keys.TranscriptIndex())
}

// Recent returns up to limit transcripts, most recent first. Unreadable
// records are skipped.
func (s *TranscriptService) Recent(ctx context.Context, limit int) ([]domain.Transcript, error) {
	ctx, span := s.tracer().Start(ctx, "Recent",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	ids, err := s.KV.IndexRevRange(ctx, s.Cache.Keys.TranscriptIndex(), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	return s.fetchAll(ctx, ids), nil
}

// Between returns every indexed transcript started within [from, to], most
// recent first.
func (s *TranscriptService) Between(ctx context.Context, from, to time.Time) ([]domain.Transcript, error) {
	ids, err := s.KV.IndexRevRangeByScore(ctx, s.Cache.Keys.TranscriptIndex(),
		float64(from.Unix()), float64(to.Unix()))
	if err != nil {
		return nil, err
	}
	return s.fetchAll(ctx, ids), nil
}

// Search finds transcripts containing keyword (case-insensitive) and ranks
// them by number of occurrences. Only a failure to read the index is
// returned as an error; unreadable candidates are skipped.
func (s *TranscriptService) Search(ctx context.Context, keyword string, opt SearchOptions) ([]SearchResult, error) {
	ctx, span := s.tracer().Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("keyword", keyword),
			attribute.Int("limit", opt.Limit),
		),
	)
	defer span.End()

	needle := []rune(strings.ToLower(strings.TrimSpace(keyword)))
	if len(needle) == 0 {
		return []SearchResult{}, nil
	}
	limit := opt.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ids, err := s.candidates(ctx, opt)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]SearchResult, 0, min(limit, len(ids)))
	scanned := 0
	for start := 0; start < len(ids) && len(results) < limit; start += searchBatchSize {
		batch := s.fetchBatch(ctx, ids[start:min(start+searchBatchSize, len(ids))])
		scanned += len(batch)

		for _, rec := range batch {
			if rec == nil {
				continue
			}
			if opt.AgentName != "" && rec.AgentName != opt.AgentName {
				continue
			}
			if opt.Direction != "" && rec.Direction != opt.Direction {
				continue
			}
			count, excerpt := matchTranscript(rec.Transcript, needle)
			if count == 0 {
				continue
			}
			results = append(results, SearchResult{
				CallID:      rec.CallID,
				AgentName:   rec.AgentName,
				ContactName: rec.ContactName,
				Direction:   rec.Direction,
				Duration:    rec.Duration,
				StartedAt:   rec.StartedAt,
				MatchCount:  count,
				Excerpt:     excerpt,
			})
			if len(results) >= limit {
				break
			}
		}
	}
	observability.ObserveSearchScanned(scanned)
	span.SetAttributes(attribute.Int("scanned", scanned), attribute.Int("results", len(results)))

	sort.SliceStable(results, func(i, j int) bool { return results[i].MatchCount > results[j].MatchCount })
	return results, nil
}

// candidates resolves the IDs to scan: a score range when any date bound is
// set, otherwise the most recent ScanLimit entries.
func (s *TranscriptService) candidates(ctx context.Context, opt SearchOptions) ([]string, error) {
	index := s.Cache.Keys.TranscriptIndex()
	if opt.FromDate == nil && opt.ToDate == nil {
		scan := s.ScanLimit
		if scan <= 0 {
			scan = DefaultSearchScanLimit
		}
		return s.KV.IndexRevRange(ctx, index, 0, int64(scan-1))
	}

	lo, hi := math.Inf(-1), math.Inf(1)
	if opt.FromDate != nil {
		lo = float64(s.dayStart(*opt.FromDate).Unix())
	}
	if opt.ToDate != nil {
		// scores are whole seconds, so the end of the day is one second
		// before the next midnight
		hi = float64(s.dayStart(*opt.ToDate).AddDate(0, 0, 1).Unix() - 1)
	}
	if lo > hi {
		return nil, nil
	}
	return s.KV.IndexRevRangeByScore(ctx, index, lo, hi)
}

// fetchBatch reads records concurrently, preserving input order. Failed or
// missing reads leave a nil slot. Members whose record is gone (expired, or
// never written) are removed from the index afterwards; read errors are not.
func (s *TranscriptService) fetchBatch(ctx context.Context, ids []string) []*domain.Transcript {
	out := make([]*domain.Transcript, len(ids))
	dangling := make([]bool, len(ids))
	var g errgroup.Group
	for i, raw := range ids {
		g.Go(func() error {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				dangling[i] = true
				return nil
			}
			rec, err := s.FetchByID(ctx, id)
			switch {
			case errors.Is(err, ErrTranscriptNotFound):
				dangling[i] = true
			case err != nil:
				s.Log.Debug().Err(err).Int64("call_id", id).Msg("skipping unreadable transcript")
			default:
				out[i] = rec
			}
			return nil
		})
	}
	_ = g.Wait()

	var stale []string
	for i, d := range dangling {
		if d {
			stale = append(stale, ids[i])
		}
	}
	s.prune(ctx, stale)
	return out
}

// prune drops index members best-effort.
func (s *TranscriptService) prune(ctx context.Context, members []string) {
	if len(members) == 0 {
		return
	}
	n, err := s.KV.IndexRemove(ctx, s.Cache.Keys.TranscriptIndex(), members...)
	if err != nil {
		s.Log.Debug().Err(err).Int("members", len(members)).Msg("transcript index prune failed")
		return
	}
	s.Log.Debug().Int64("removed", n).Msg("pruned dangling transcript index entries")
}

func (s *TranscriptService) fetchAll(ctx context.Context, ids []string) []domain.Transcript {
	out := make([]domain.Transcript, 0, len(ids))
	for start := 0; start < len(ids); start += searchBatchSize {
		for _, rec := range s.fetchBatch(ctx, ids[start:min(start+searchBatchSize, len(ids))]) {
			if rec != nil {
				out = append(out, *rec)
			}
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayStart is midnight of t's calendar date in the service location. Only
// the date of t is used, so a day parsed as UTC midnight keeps its date.
func (s *TranscriptService) dayStart(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// matchTranscript counts non-overlapping case-insensitive occurrences of
// needle (already lower-cased) and builds an excerpt around the first one.
func matchTranscript(text string, needle []rune) (int, string) {
	orig := []rune(text)
	hay := make([]rune, len(orig))
	for i, r := range orig {
		hay[i] = unicode.ToLower(r)
	}

	first := indexRunes(hay, needle, 0)
	if first < 0 {
		return 0, ""
	}
	count := 0
	for pos := first; pos >= 0; pos = indexRunes(hay, needle, pos+len(needle)) {
		count++
	}
	return count, excerpt(orig, first, len(needle))
}

func indexRunes(hay, needle []rune, from int) int {
	for i := from; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func excerpt(text []rune, at, n int) string {
	start := max(0, at-excerptRadius)
	end := min(len(text), at+n+excerptRadius)

	var b strings.Builder
	if start > 0 {
		b.WriteString(excerptMarker)
	}
	b.WriteString(string(text[start:end]))
	if end < len(text) {
		b.WriteString(excerptMarker)
	}
	return b.String()
}
