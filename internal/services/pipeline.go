// Package services – Pipeline
//
// Pipeline owns the cache-or-compute discipline around the analyzer and the
// digest aggregator. It checks preconditions before any generation request,
// reads the cache unless a refresh is forced, writes results back with the
// configured TTL, and isolates per-call failures while building a digest.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/kvstore"
	"github.com/tbourn/call-intel-backend/internal/observability"
)

// PipelineConfig holds preconditions and digest batch limits.
type PipelineConfig struct {
	MinTranscriptRunes  int
	AnalysisMinDuration time.Duration
	DigestMinDuration   time.Duration
	DigestMaxCalls      int
	DigestConcurrency   int
	Location            *time.Location
}

// DefaultPipelineConfig returns the production thresholds.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinTranscriptRunes:  50,
		AnalysisMinDuration: 120 * time.Second,
		DigestMinDuration:   180 * time.Second,
		DigestMaxCalls:      20,
		DigestConcurrency:   4,
		Location:            time.UTC,
	}
}

// Pipeline coordinates analysis and digest generation with caching.
type Pipeline struct {
	Store      kvstore.Store
	Cache      CachePolicy
	Analyzer   Analyzer
	Aggregator Aggregator
	Calls      CallSource
	Cfg        PipelineConfig

	Log zerolog.Logger
	Now func() time.Time
}

func NewPipeline(store kvstore.Store, cache CachePolicy, an Analyzer, agg Aggregator, calls CallSource, cfg PipelineConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Store:      store,
		Cache:      cache,
		Analyzer:   an,
		Aggregator: agg,
		Calls:      calls,
		Cfg:        cfg,
		Log:        log,
		Now:        time.Now,
	}
}

func (p *Pipeline) tracer() trace.Tracer { return otel.Tracer("services/Pipeline") }

// Analyse returns the analysis for one call, from cache unless force is set.
// cached reports whether the result came from the cache.
func (p *Pipeline) Analyse(ctx context.Context, in AnalysisInput, force bool) (analysis *domain.CallAnalysis, cached bool, err error) {
	ctx, span := p.tracer().Start(ctx, "Analyse",
		trace.WithAttributes(
			attribute.Int64("call.id", in.CallID),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	if err := p.checkAnalysable(in, p.Cfg.AnalysisMinDuration); err != nil {
		observability.ObserveAnalysis(observability.OutcomeRejected)
		return nil, false, err
	}
	return p.analyseCached(ctx, in, force)
}

// AnalyseByID resolves the call and its transcript through the call source
// and then behaves like Analyse.
func (p *Pipeline) AnalyseByID(ctx context.Context, callID int64, force bool) (*domain.CallAnalysis, bool, error) {
	meta, err := p.Calls.Call(ctx, callID)
	if err != nil {
		return nil, false, err
	}
	if !meta.Answered {
		observability.ObserveAnalysis(observability.OutcomeRejected)
		return nil, false, ErrCallNotAnswered
	}
	text, err := p.Calls.Transcript(ctx, callID)
	if err != nil {
		return nil, false, err
	}
	return p.Analyse(ctx, inputFor(meta, text), force)
}

func inputFor(meta domain.CallMeta, text string) AnalysisInput {
	return AnalysisInput{
		CallID:      meta.CallID,
		Transcript:  text,
		AgentName:   meta.AgentName,
		ContactName: meta.ContactName,
		Duration:    meta.Duration,
		Direction:   meta.Direction,
	}
}

func (p *Pipeline) checkAnalysable(in AnalysisInput, minDuration time.Duration) error {
	if utf8.RuneCountInString(strings.TrimSpace(in.Transcript)) < p.Cfg.MinTranscriptRunes {
		return ErrTranscriptTooShort
	}
	if time.Duration(in.Duration)*time.Second < minDuration {
		return ErrCallTooShort
	}
	return nil
}

func (p *Pipeline) analyseCached(ctx context.Context, in AnalysisInput, force bool) (*domain.CallAnalysis, bool, error) {
	key := p.Cache.Keys.Analysis(in.CallID)
	log := p.Log.With().Int64("call_id", in.CallID).Logger()

	if !force {
		var hit domain.CallAnalysis
		err := getJSON(ctx, p.Store, key, &hit)
		switch {
		case err == nil:
			if hit.AgentName == "" {
				hit.AgentName = in.AgentName
			}
			observability.ObserveAnalysis(observability.OutcomeCacheHit)
			return &hit, true, nil
		case errors.Is(err, kvstore.ErrNotFound):
		default:
			log.Warn().Err(err).Msg("analysis cache read failed, recomputing")
		}
	}

	a, err := p.Analyzer.Analyse(ctx, in)
	if err != nil {
		observability.ObserveAnalysis(observability.OutcomeFailed)
		return nil, false, err
	}
	a.AgentName = in.AgentName

	if err := setJSON(ctx, p.Store, key, a, p.Cache.AnalysisTTL); err != nil {
		log.Warn().Err(err).Msg("analysis cache write failed")
	}
	observability.ObserveAnalysis(observability.OutcomeComputed)
	return a, false, nil
}

// Digest returns the team digest for a period, from cache unless force is
// set. Calls that cannot be analysed are skipped and logged; only a failure
// to list calls or to generate the digest itself is returned.
func (p *Pipeline) Digest(ctx context.Context, period string, force bool) (digest *domain.Digest, cached bool, err error) {
	ctx, span := p.tracer().Start(ctx, "Digest",
		trace.WithAttributes(
			attribute.String("period", period),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	w, err := ResolvePeriod(period, p.Now(), p.Cfg.Location)
	if err != nil {
		return nil, false, err
	}
	key := p.Cache.Keys.Digest(w.Anchor, w.Slug)
	log := p.Log.With().Str("period", w.Slug).Logger()

	if !force {
		var hit domain.Digest
		err := getJSON(ctx, p.Store, key, &hit)
		switch {
		case err == nil:
			hit.Normalize()
			observability.ObserveDigest(observability.OutcomeCacheHit)
			return &hit, true, nil
		case errors.Is(err, kvstore.ErrNotFound):
		default:
			log.Warn().Err(err).Msg("digest cache read failed, recomputing")
		}
	}

	calls, err := p.Calls.CallsBetween(ctx, w.From, w.To)
	if err != nil {
		observability.ObserveDigest(observability.OutcomeFailed)
		return nil, false, fmt.Errorf("list calls for %s: %w", w.Slug, err)
	}
	selected := p.selectMeaningful(calls)
	analyses := p.analyseBatch(ctx, selected, log)
	span.SetAttributes(
		attribute.Int("calls.selected", len(selected)),
		attribute.Int("calls.analysed", len(analyses)),
	)

	d, err := p.Aggregator.Generate(ctx, analyses, repNames(analyses), w.Label)
	if err != nil {
		observability.ObserveDigest(observability.OutcomeFailed)
		return nil, false, err
	}

	// an empty digest is not cached so new calls show up on the next request
	if d.TotalCallsAnalysed > 0 {
		if err := setJSON(ctx, p.Store, key, d, p.Cache.DigestTTL); err != nil {
			log.Warn().Err(err).Msg("digest cache write failed")
		}
	}
	observability.ObserveDigest(observability.OutcomeComputed)
	log.Info().
		Int("selected", len(selected)).
		Int("analysed", len(analyses)).
		Bool("force", force).
		Msg("digest generated")
	return d, false, nil
}

// selectMeaningful keeps answered calls of at least the digest minimum
// duration, most recent first, capped at DigestMaxCalls.
func (p *Pipeline) selectMeaningful(calls []domain.CallMeta) []domain.CallMeta {
	out := make([]domain.CallMeta, 0, len(calls))
	for _, c := range calls {
		if c.Answered && time.Duration(c.Duration)*time.Second >= p.Cfg.DigestMinDuration {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if p.Cfg.DigestMaxCalls > 0 && len(out) > p.Cfg.DigestMaxCalls {
		out = out[:p.Cfg.DigestMaxCalls]
	}
	return out
}

// analyseBatch attempts every selected call independently with bounded
// concurrency. Successful analyses are returned in selection order.
func (p *Pipeline) analyseBatch(ctx context.Context, calls []domain.CallMeta, log zerolog.Logger) []domain.CallAnalysis {
	slots := make([]*domain.CallAnalysis, len(calls))

	var g errgroup.Group
	g.SetLimit(max(1, p.Cfg.DigestConcurrency))
	for i, c := range calls {
		g.Go(func() error {
			a, err := p.attempt(ctx, c)
			if err != nil {
				log.Warn().Err(err).Int64("call_id", c.CallID).Msg("skipping call in digest")
				observability.ObserveDigestCall(observability.DigestCallSkipped)
				return nil
			}
			slots[i] = a
			observability.ObserveDigestCall(observability.DigestCallIncluded)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.CallAnalysis, 0, len(calls))
	for _, a := range slots {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func (p *Pipeline) attempt(ctx context.Context, c domain.CallMeta) (*domain.CallAnalysis, error) {
	text, err := p.Calls.Transcript(ctx, c.CallID)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	in := inputFor(c, text)
	if err := p.checkAnalysable(in, p.Cfg.DigestMinDuration); err != nil {
		return nil, err
	}
	a, _, err := p.analyseCached(ctx, in, false)
	return a, err
}

// repNames returns the distinct reps of the analysed calls in first-seen
// order. Blank and "unknown" names are dropped; duplicates are matched
// case-insensitively.
func repNames(analyses []domain.CallAnalysis) []string {
	caser := cases.Title(language.English)
	seen := make(map[string]struct{}, len(analyses))
	out := make([]string, 0, len(analyses))
	for _, a := range analyses {
		name := strings.Join(strings.Fields(a.AgentName), " ")
		if name == "" || strings.EqualFold(name, "unknown") {
			continue
		}
		k := strings.ToLower(name)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, caser.String(name))
	}
	return out
}
