package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/llm"
)

// AnalysisInput is one call handed to the analyzer.
type AnalysisInput struct {
	CallID      int64  `json:"callId"`
	Transcript  string `json:"transcript"`
	AgentName   string `json:"agentName"`
	ContactName string `json:"contactName"`
	Duration    int    `json:"duration"`
	Direction   string `json:"direction"`
}

// Analyzer produces a structured analysis for one call.
type Analyzer interface {
	Analyse(ctx context.Context, in AnalysisInput) (*domain.CallAnalysis, error)
}

// CallAnalyzer issues exactly one generation request per call and validates
// the reply. It never reads or writes the cache.
type CallAnalyzer struct {
	Gen       llm.Generator
	MaxTokens int
	Now       func() time.Time
}

func NewCallAnalyzer(gen llm.Generator) *CallAnalyzer {
	return &CallAnalyzer{Gen: gen, MaxTokens: 2048, Now: time.Now}
}

const analysisSystemPrompt = `You are a sales call analyst for a hospitality company that sells corporate hospitality packages for sporting and cultural events.
Analyse the call transcript you are given and respond with ONLY a JSON object, no prose, matching this schema:
{
  "summary": string,                       // 2-3 sentences
  "sentiment": "positive" | "neutral" | "negative" | "mixed",
  "sentimentScore": integer 0-100,         // 0 very negative, 100 very positive
  "keyTopics": [string],
  "objections": [string],
  "competitorMentions": [string],
  "eventsMentioned": [string],
  "actionItems": [{"description": string, "assignee": string, "priority": "high" | "medium" | "low"}],
  "opportunitySignals": [{"type": "new_deal" | "upsell" | "follow_up" | "at_risk" | "closed_lost", "description": string, "estimatedValue": string (optional)}],
  "talkToListenRatio": {"agentPct": number, "contactPct": number},
  "coachingNotes": string | null,
  "draftFollowUp": string | null
}
Order list entries by relevance. Use empty arrays when nothing applies.`

// Analyse returns the validated analysis of one call. A generator failure is
// wrapped in ErrGeneration; an unparseable or out-of-schema reply is wrapped
// in ErrMalformedResponse. Neither is retried.
func (a *CallAnalyzer) Analyse(ctx context.Context, in AnalysisInput) (*domain.CallAnalysis, error) {
	ctx, span := otel.Tracer("services/CallAnalyzer").Start(ctx, "Analyse",
		trace.WithAttributes(attribute.Int64("call.id", in.CallID)),
	)
	defer span.End()

	resp, err := a.Gen.Generate(ctx, llm.Request{
		Operation: "analyse",
		System:    analysisSystemPrompt,
		Prompt:    analysisPrompt(in),
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		span.SetStatus(codes.Error, "generate")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	var out domain.CallAnalysis
	if err := llm.DecodeJSON(resp.Text, &out); err != nil {
		span.SetStatus(codes.Error, "decode")
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := validateAnalysis(&out); err != nil {
		span.SetStatus(codes.Error, "validate")
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out.CallID = in.CallID
	out.AnalysedAt = a.Now().UTC().Format(time.RFC3339)
	normalizeAnalysis(&out)
	return &out, nil
}

func analysisPrompt(in AnalysisInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call ID: %d\n", in.CallID)
	fmt.Fprintf(&b, "Agent: %s\n", orUnknown(in.AgentName))
	fmt.Fprintf(&b, "Contact: %s\n", orUnknown(in.ContactName))
	fmt.Fprintf(&b, "Direction: %s\n", orUnknown(in.Direction))
	fmt.Fprintf(&b, "Duration: %dm %02ds\n\n", in.Duration/60, in.Duration%60)
	b.WriteString("Transcript:\n")
	b.WriteString(in.Transcript)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func validateAnalysis(a *domain.CallAnalysis) error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("summary is empty")
	}
	if !domain.ValidSentiment(a.Sentiment) {
		return fmt.Errorf("sentiment %q is not recognised", a.Sentiment)
	}
	if a.SentimentScore < 0 || a.SentimentScore > 100 {
		return fmt.Errorf("sentimentScore %d out of range", a.SentimentScore)
	}
	for i, item := range a.ActionItems {
		if !domain.ValidPriority(item.Priority) {
			return fmt.Errorf("actionItems[%d]: priority %q is not recognised", i, item.Priority)
		}
	}
	for i, sig := range a.OpportunitySignals {
		if !domain.ValidSignalType(sig.Type) {
			return fmt.Errorf("opportunitySignals[%d]: type %q is not recognised", i, sig.Type)
		}
	}
	return nil
}

func normalizeAnalysis(a *domain.CallAnalysis) {
	if a.KeyTopics == nil {
		a.KeyTopics = []string{}
	}
	if a.Objections == nil {
		a.Objections = []string{}
	}
	if a.CompetitorMentions == nil {
		a.CompetitorMentions = []string{}
	}
	if a.EventsMentioned == nil {
		a.EventsMentioned = []string{}
	}
	if a.ActionItems == nil {
		a.ActionItems = []domain.ActionItem{}
	}
	if a.OpportunitySignals == nil {
		a.OpportunitySignals = []domain.OpportunitySignal{}
	}
}
