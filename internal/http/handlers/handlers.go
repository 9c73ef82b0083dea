package handlers

import (
	"context"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// TranscriptService defines transcript storage and lookup operations consumed
// by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TranscriptService interface {
	// Store writes a transcript and reports whether it was fully persisted.
	Store(ctx context.Context, meta domain.CallMeta, text string) services.StoreOutcome
	// FetchByID returns one stored transcript or services.ErrTranscriptNotFound.
	FetchByID(ctx context.Context, callID int64) (*domain.Transcript, error)
	// Count returns the number of indexed transcripts.
	Count(ctx context.Context) (int64, error)
	// Recent returns up to limit transcripts, most recent first.
	Recent(ctx context.Context, limit int) ([]domain.Transcript, error)
	// Search ranks transcripts by occurrences of keyword.
	Search(ctx context.Context, keyword string, opt services.SearchOptions) ([]services.SearchResult, error)
}

// PipelineService defines the analysis and digest operations.
type PipelineService interface {
	// Analyse analyses caller-supplied call data.
	Analyse(ctx context.Context, in services.AnalysisInput, force bool) (*domain.CallAnalysis, bool, error)
	// AnalyseByID resolves the call through the call source and analyses it.
	AnalyseByID(ctx context.Context, callID int64, force bool) (*domain.CallAnalysis, bool, error)
	// Digest returns the team digest for a named period.
	Digest(ctx context.Context, period string, force bool) (*domain.Digest, bool, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for transcripts, analyses and digests.
type Handlers struct {
	transcripts TranscriptService
	pipeline    PipelineService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(transcripts TranscriptService, pipeline PipelineService) *Handlers {
	return &Handlers{transcripts: transcripts, pipeline: pipeline}
}
