package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/call-intel-backend/internal/config"
	"github.com/tbourn/call-intel-backend/internal/kvstore"
	"github.com/tbourn/call-intel-backend/internal/llm"
	"github.com/tbourn/call-intel-backend/internal/observability"
	"github.com/tbourn/call-intel-backend/internal/services"
	"github.com/tbourn/call-intel-backend/internal/sysutil"
)

const purgeInterval = 15 * time.Minute

// app holds the services shared by every command.
type app struct {
	cfg         config.Config
	store       kvstore.Store
	transcripts *services.TranscriptService
	pipeline    *services.Pipeline
	log         zerolog.Logger
}

func openStore(ctx context.Context, cfg config.StoreConfig) (kvstore.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return kvstore.OpenSQLite(cfg.DBPath)
	case config.DriverRedis:
		return kvstore.NewRedisStore(ctx, kvstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func cachePolicy(cfg config.Config) services.CachePolicy {
	return services.CachePolicy{
		Keys:          services.Keys{Prefix: cfg.Store.KeyPrefix},
		TranscriptTTL: cfg.TTL.Transcript,
		AnalysisTTL:   cfg.TTL.Analysis,
		DigestTTL:     cfg.TTL.Digest,
	}
}

func pipelineConfig(cfg config.Config) (services.PipelineConfig, error) {
	loc, err := cfg.Location()
	if err != nil {
		return services.PipelineConfig{}, fmt.Errorf("timezone %q: %w", cfg.Pipeline.TimeZone, err)
	}
	return services.PipelineConfig{
		MinTranscriptRunes:  cfg.Pipeline.MinTranscriptRunes,
		AnalysisMinDuration: cfg.Pipeline.AnalysisMinDuration,
		DigestMinDuration:   cfg.Pipeline.DigestMinDuration,
		DigestMaxCalls:      cfg.Pipeline.DigestMaxCalls,
		DigestConcurrency:   cfg.Pipeline.DigestConcurrency,
		Location:            loc,
	}, nil
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	gen := llm.NewAnthropicClient(llm.Options{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
		RPS:       cfg.LLM.RPS,
		Burst:     cfg.LLM.Burst,
	}).WithObserver(observability.ObserveGenerator)

	cache := cachePolicy(cfg)
	ts := services.NewTranscriptService(store, cache, sysutil.Component("transcripts"))
	ts.ScanLimit = cfg.Pipeline.SearchScanLimit
	ts.Location = pcfg.Location

	analyzer := services.NewCallAnalyzer(gen)
	aggregator := services.NewDigestAggregator(gen)
	if cfg.LLM.MaxTokens > 0 {
		aggregator.MaxTokens = cfg.LLM.MaxTokens
	}

	p := services.NewPipeline(store, cache, analyzer, aggregator,
		services.StoredCalls{Transcripts: ts}, pcfg, sysutil.Component("pipeline"))

	return &app{
		cfg:         cfg,
		store:       store,
		transcripts: ts,
		pipeline:    p,
		log:         sysutil.Component("callintel"),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
}

type expirer interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeLoop removes expired records from backends that do not expire keys
// on their own. Redis needs no janitor.
func (a *app) purgeLoop(ctx context.Context) {
	e, ok := a.store.(expirer)
	if !ok {
		return
	}
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := e.PurgeExpired(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("purge expired records")
				continue
			}
			if n > 0 {
				a.log.Debug().Int64("rows", n).Msg("purged expired records")
			}
		}
	}
}
