package domain

// ObjectionStat is a recurring objection across the digest period.
type ObjectionStat struct {
	Objection         string `json:"objection"`
	Frequency         int    `json:"frequency"`
	SuggestedResponse string `json:"suggestedResponse"`
}

// WinningPitch is an approach that landed well on one or more calls.
type WinningPitch struct {
	Pitch   string `json:"pitch"`
	Rep     string `json:"rep"`
	Context string `json:"context"`
}

// EventDemand aggregates interest in a named event.
type EventDemand struct {
	Event         string `json:"event"`
	Mentions      int    `json:"mentions"`
	InterestLevel string `json:"interestLevel"`
}

// CompetitorIntel summarises what was heard about a competitor.
type CompetitorIntel struct {
	Competitor string `json:"competitor"`
	Mentions   int    `json:"mentions"`
	Context    string `json:"context"`
}

// FollowUpGap is a promised or expected follow-up that has no owner or date.
type FollowUpGap struct {
	Rep          string `json:"rep"`
	Contact      string `json:"contact"`
	MissedAction string `json:"missedAction"`
}

// CoachingHighlight is per-rep coaching feedback.
type CoachingHighlight struct {
	Rep         string `json:"rep"`
	Strength    string `json:"strength"`
	Improvement string `json:"improvement"`
}

// KeyDeal is an opportunity worth the team's attention.
type KeyDeal struct {
	Contact        string `json:"contact"`
	Rep            string `json:"rep"`
	Description    string `json:"description"`
	EstimatedValue string `json:"estimatedValue,omitempty"`
	NextStep       string `json:"nextStep"`
}

// Digest is the team report for one (day, period) pair.
type Digest struct {
	Period                 string              `json:"period"`
	GeneratedAt            string              `json:"generatedAt"`
	TotalCallsAnalysed     int                 `json:"totalCallsAnalysed"`
	TeamSummary            string              `json:"teamSummary"`
	TeamMembers            []string            `json:"teamMembers"`
	TopObjections          []ObjectionStat     `json:"topObjections"`
	WinningPitches         []WinningPitch      `json:"winningPitches"`
	EventDemand            []EventDemand       `json:"eventDemand"`
	CompetitorIntelligence []CompetitorIntel   `json:"competitorIntelligence"`
	FollowUpGaps           []FollowUpGap       `json:"followUpGaps"`
	CoachingHighlights     []CoachingHighlight `json:"coachingHighlights"`
	KeyDeals               []KeyDeal           `json:"keyDeals"`
}

// Normalize replaces nil sections with empty slices so the JSON shape is
// stable for clients.
func (d *Digest) Normalize() {
	if d.TeamMembers == nil {
		d.TeamMembers = []string{}
	}
	if d.TopObjections == nil {
		d.TopObjections = []ObjectionStat{}
	}
	if d.WinningPitches == nil {
		d.WinningPitches = []WinningPitch{}
	}
	if d.EventDemand == nil {
		d.EventDemand = []EventDemand{}
	}
	if d.CompetitorIntelligence == nil {
		d.CompetitorIntelligence = []CompetitorIntel{}
	}
	if d.FollowUpGaps == nil {
		d.FollowUpGaps = []FollowUpGap{}
	}
	if d.CoachingHighlights == nil {
		d.CoachingHighlights = []CoachingHighlight{}
	}
	if d.KeyDeals == nil {
		d.KeyDeals = []KeyDeal{}
	}
}
