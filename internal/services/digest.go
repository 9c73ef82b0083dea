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

const digestSeparator = "\n\n---\n\n"

// Aggregator turns a batch of call analyses into one team digest.
type Aggregator interface {
	Generate(ctx context.Context, analyses []domain.CallAnalysis, repNames []string, periodLabel string) (*domain.Digest, error)
}

// DigestAggregator synthesises a digest with one generation request. It
// never calls the generator for an empty batch.
type DigestAggregator struct {
	Gen       llm.Generator
	MaxTokens int
	Now       func() time.Time
}

func NewDigestAggregator(gen llm.Generator) *DigestAggregator {
	return &DigestAggregator{Gen: gen, MaxTokens: 4096, Now: time.Now}
}

const digestSystemPrompt = `You are a sales manager's assistant for a hospitality company that sells corporate hospitality packages.
You receive short summaries of many sales calls from one reporting period. Find patterns ACROSS the calls; do not re-list individual calls.
Respond with ONLY a JSON object, no prose, matching this schema:
{
  "teamSummary": string,
  "topObjections": [{"objection": string, "frequency": integer, "suggestedResponse": string}],
  "winningPitches": [{"pitch": string, "rep": string, "context": string}],
  "eventDemand": [{"event": string, "mentions": integer, "interestLevel": "high" | "medium" | "low"}],
  "competitorIntelligence": [{"competitor": string, "mentions": integer, "context": string}],
  "followUpGaps": [{"rep": string, "contact": string, "missedAction": string}],
  "coachingHighlights": [{"rep": string, "strength": string, "improvement": string}],
  "keyDeals": [{"contact": string, "rep": string, "description": string, "estimatedValue": string, "nextStep": string}]
}
Use only the rep names you are given. Use empty arrays when nothing applies.`

// Generate builds the digest for periodLabel. TotalCallsAnalysed and
// TeamMembers are always set from the inputs, never from the reply.
func (g *DigestAggregator) Generate(ctx context.Context, analyses []domain.CallAnalysis, repNames []string, periodLabel string) (*domain.Digest, error) {
	ctx, span := otel.Tracer("services/DigestAggregator").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("period", periodLabel),
			attribute.Int("calls", len(analyses)),
		),
	)
	defer span.End()

	now := g.Now().UTC().Format(time.RFC3339)

	if len(analyses) == 0 {
		d := &domain.Digest{
			Period:      periodLabel,
			GeneratedAt: now,
			TeamSummary: fmt.Sprintf("No calls were analysed for %s. Digests cover answered calls that are long enough to analyse and have a transcript; check back once the team has completed some conversations.", strings.ToLower(periodLabel)),
			TeamMembers: append([]string{}, repNames...),
		}
		d.Normalize()
		return d, nil
	}

	resp, err := g.Gen.Generate(ctx, llm.Request{
		Operation: "digest",
		System:    digestSystemPrompt,
		Prompt:    digestPrompt(analyses, repNames, periodLabel),
		MaxTokens: g.MaxTokens,
	})
	if err != nil {
		span.SetStatus(codes.Error, "generate")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	var d domain.Digest
	if err := llm.DecodeJSON(resp.Text, &d); err != nil {
		span.SetStatus(codes.Error, "decode")
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(d.TeamSummary) == "" {
		span.SetStatus(codes.Error, "validate")
		return nil, fmt.Errorf("%w: teamSummary is empty", ErrMalformedResponse)
	}

	d.Period = periodLabel
	d.GeneratedAt = now
	d.TotalCallsAnalysed = len(analyses)
	d.TeamMembers = append([]string{}, repNames...)
	d.Normalize()
	return &d, nil
}

func digestPrompt(analyses []domain.CallAnalysis, repNames []string, periodLabel string) string {
	parts := make([]string, 0, len(analyses))
	for _, a := range analyses {
		parts = append(parts, summarizeAnalysis(a))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s\n", periodLabel)
	fmt.Fprintf(&b, "Calls analysed: %d\n", len(analyses))
	fmt.Fprintf(&b, "Team members: %s\n\n", strings.Join(repNames, ", "))
	b.WriteString(strings.Join(parts, digestSeparator))
	return b.String()
}

// summarizeAnalysis renders one analysis as a compact paragraph.
func summarizeAnalysis(a domain.CallAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call %d", a.CallID)
	if a.AgentName != "" {
		fmt.Fprintf(&b, " (rep: %s)", a.AgentName)
	}
	fmt.Fprintf(&b, ": %s\n", strings.TrimSpace(a.Summary))
	fmt.Fprintf(&b, "Sentiment: %s (%d/100)\n", a.Sentiment, a.SentimentScore)
	writeList(&b, "Topics", a.KeyTopics)
	writeList(&b, "Objections", a.Objections)
	writeList(&b, "Events", a.EventsMentioned)
	writeList(&b, "Competitors", a.CompetitorMentions)

	if len(a.ActionItems) > 0 {
		items := make([]string, 0, len(a.ActionItems))
		for _, it := range a.ActionItems {
			items = append(items, fmt.Sprintf("%s [%s, %s]", it.Description, it.Assignee, it.Priority))
		}
		writeList(&b, "Actions", items)
	}
	if len(a.OpportunitySignals) > 0 {
		sigs := make([]string, 0, len(a.OpportunitySignals))
		for _, s := range a.OpportunitySignals {
			if s.EstimatedValue != "" {
				sigs = append(sigs, fmt.Sprintf("%s: %s (%s)", s.Type, s.Description, s.EstimatedValue))
			} else {
				sigs = append(sigs, fmt.Sprintf("%s: %s", s.Type, s.Description))
			}
		}
		writeList(&b, "Signals", sigs)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, "; "))
}
