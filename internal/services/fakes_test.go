package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/kvstore"
	"github.com/tbourn/call-intel-backend/internal/llm"
)

var errBackendDown = errors.New("backend unavailable")

// memStore is an in-memory kvstore.Store with switchable failures.
type memStore struct {
	mu   sync.Mutex
	vals map[string][]byte
	ttls map[string]time.Duration
	idx  map[string]map[string]float64

	failGet   bool
	failSet   bool
	failIndex bool
	badKeys   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		vals:    map[string][]byte{},
		ttls:    map[string]time.Duration{},
		idx:     map[string]map[string]float64{},
		badKeys: map[string]bool{},
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet || m.badKeys[key] {
		return nil, errBackendDown
	}
	v, ok := m.vals[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errBackendDown
	}
	m.vals[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) IndexAdd(_ context.Context, index, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIndex {
		return errBackendDown
	}
	if m.idx[index] == nil {
		m.idx[index] = map[string]float64{}
	}
	m.idx[index][member] = score
	return nil
}

func (m *memStore) sorted(index string) []string {
	set := m.idx[index]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if set[out[i]] != set[out[j]] {
			return set[out[i]] > set[out[j]]
		}
		return out[i] > out[j]
	})
	return out
}

func (m *memStore) IndexRevRange(_ context.Context, index string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIndex {
		return nil, errBackendDown
	}
	all := m.sorted(index)
	if start >= int64(len(all)) {
		return []string{}, nil
	}
	if stop < 0 || stop >= int64(len(all)) {
		stop = int64(len(all)) - 1
	}
	return all[start : stop+1], nil
}

func (m *memStore) IndexRevRangeByScore(_ context.Context, index string, min, max float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIndex {
		return nil, errBackendDown
	}
	var out []string
	for _, k := range m.sorted(index) {
		if s := m.idx[index][k]; s >= min && s <= max {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) IndexCount(_ context.Context, index string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIndex {
		return 0, errBackendDown
	}
	return int64(len(m.idx[index])), nil
}

func (m *memStore) IndexRemove(_ context.Context, index string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIndex {
		return 0, errBackendDown
	}
	var n int64
	for _, k := range members {
		if _, ok := m.idx[index][k]; ok {
			delete(m.idx[index], k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

var _ kvstore.Store = (*memStore)(nil)

// fakeGen returns canned replies and counts calls per operation.
type fakeGen struct {
	mu       sync.Mutex
	analyses atomic.Int64
	digests  atomic.Int64
	prompts  []string

	// reply builds the response text; nil uses cannedAnalysis/cannedDigest.
	reply func(req llm.Request) (string, error)
}

func (f *fakeGen) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	switch req.Operation {
	case "analyse":
		f.analyses.Add(1)
	case "digest":
		f.digests.Add(1)
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.reply != nil {
		text, err := f.reply(req)
		return llm.Response{Text: text}, err
	}
	if req.Operation == "digest" {
		return llm.Response{Text: cannedDigest}, nil
	}
	return llm.Response{Text: cannedAnalysis}, nil
}

func (f *fakeGen) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

const cannedAnalysis = "```json\n" + `{
  "summary": "Client asked about Grand Prix hospitality for twelve guests.",
  "sentiment": "positive",
  "sentimentScore": 78,
  "keyTopics": ["Grand Prix", "group booking"],
  "objections": ["price per head"],
  "competitorMentions": ["Rival Events"],
  "eventsMentioned": ["British Grand Prix"],
  "actionItems": [{"description": "Send package options", "assignee": "agent", "priority": "high"}],
  "opportunitySignals": [{"type": "new_deal", "description": "12-person box", "estimatedValue": "£18,000"}],
  "talkToListenRatio": {"agentPct": 55, "contactPct": 45},
  "coachingNotes": "Good discovery questions.",
  "draftFollowUp": null
}` + "\n```"

const cannedDigest = `{
  "teamSummary": "Strong demand for motorsport hospitality; price remains the main objection.",
  "topObjections": [{"objection": "price per head", "frequency": 2, "suggestedResponse": "Lead with inclusions."}],
  "winningPitches": [],
  "eventDemand": [{"event": "British Grand Prix", "mentions": 2, "interestLevel": "high"}],
  "competitorIntelligence": [],
  "followUpGaps": [],
  "coachingHighlights": [],
  "keyDeals": []
}`

// fakeCalls is a CallSource over fixed data.
type fakeCalls struct {
	calls       []domain.CallMeta
	transcripts map[int64]string
	listErr     error
}

func (f *fakeCalls) Call(_ context.Context, id int64) (domain.CallMeta, error) {
	for _, c := range f.calls {
		if c.CallID == id {
			return c, nil
		}
	}
	return domain.CallMeta{}, ErrCallNotFound
}

func (f *fakeCalls) CallsBetween(_ context.Context, from, to time.Time) ([]domain.CallMeta, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.CallMeta
	for _, c := range f.calls {
		if c.StartedAt >= from.Unix() && c.StartedAt <= to.Unix() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCalls) Transcript(_ context.Context, id int64) (string, error) {
	t, ok := f.transcripts[id]
	if !ok {
		return "", ErrTranscriptNotFound
	}
	return t, nil
}

func newTestTranscripts(store *memStore, now time.Time) *TranscriptService {
	s := NewTranscriptService(store, DefaultCachePolicy(), zerolog.Nop())
	s.Now = func() time.Time { return now }
	return s
}

// longText pads a phrase to comfortably pass the transcript length check.
func longText(phrase string) string {
	return phrase + " " + strings.Repeat("and then we talked about the hospitality options in detail ", 2)
}

func callMeta(id int64, agent string, startedAt time.Time, duration int) domain.CallMeta {
	return domain.CallMeta{
		CallID:      id,
		AgentName:   agent,
		ContactName: fmt.Sprintf("Contact %d", id),
		Duration:    duration,
		Direction:   domain.DirectionOutbound,
		StartedAt:   startedAt.Unix(),
		Answered:    true,
	}
}
