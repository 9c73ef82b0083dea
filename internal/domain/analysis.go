package domain

// Sentiment values.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentMixed    = "mixed"
)

// Priority values for action items.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Opportunity signal types.
const (
	SignalNewDeal    = "new_deal"
	SignalUpsell     = "upsell"
	SignalFollowUp   = "follow_up"
	SignalAtRisk     = "at_risk"
	SignalClosedLost = "closed_lost"
)

// ActionItem is a follow-up task extracted from a call.
type ActionItem struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	Priority    string `json:"priority"`
}

// OpportunitySignal flags a commercial signal raised during a call.
type OpportunitySignal struct {
	Type           string `json:"type"`
	Description    string `json:"description"`
	EstimatedValue string `json:"estimatedValue,omitempty"`
}

// TalkRatio is the share of talk time per side, in percent. The two values
// should sum to roughly 100 but this is not enforced.
type TalkRatio struct {
	AgentPct   float64 `json:"agentPct"`
	ContactPct float64 `json:"contactPct"`
}

// CallAnalysis is the structured analysis of one call. It is derived from the
// transcript by the text-generation service and is not reproducible byte for
// byte; list fields keep the order produced by the analysis (relevance).
type CallAnalysis struct {
	CallID             int64               `json:"callId"`
	Summary            string              `json:"summary"`
	Sentiment          string              `json:"sentiment"`
	SentimentScore     int                 `json:"sentimentScore"`
	KeyTopics          []string            `json:"keyTopics"`
	Objections         []string            `json:"objections"`
	CompetitorMentions []string            `json:"competitorMentions"`
	EventsMentioned    []string            `json:"eventsMentioned"`
	ActionItems        []ActionItem        `json:"actionItems"`
	OpportunitySignals []OpportunitySignal `json:"opportunitySignals"`
	TalkToListenRatio  TalkRatio           `json:"talkToListenRatio"`
	CoachingNotes      *string             `json:"coachingNotes"`
	DraftFollowUp      *string             `json:"draftFollowUp"`
	AnalysedAt         string              `json:"analysedAt"`

	// AgentName is not produced by the analysis; it is attached by the
	// pipeline so digests can attribute calls to reps.
	AgentName string `json:"agentName,omitempty"`
}

// ValidSentiment reports whether s is a known sentiment value.
func ValidSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known action item priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ValidSignalType reports whether t is a known opportunity signal type.
func ValidSignalType(t string) bool {
	switch t {
	case SignalNewDeal, SignalUpsell, SignalFollowUp, SignalAtRisk, SignalClosedLost:
		return true
	}
	return false
}
