package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/call-intel-backend/internal/domain"
)

var day = time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

func mustStore(t *testing.T, s *TranscriptService, m domain.CallMeta, text string) {
	t.Helper()
	if out := s.Store(context.Background(), m, text); out.Degraded() {
		t.Fatalf("Store(%d) degraded: %v", m.CallID, out.Err)
	}
}

func TestStore_ReplacesPreviousRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestTranscripts(newMemStore(), at(12))

	mustStore(t, s, callMeta(1, "Sam", at(9), 300), "first version of the call")
	mustStore(t, s, callMeta(1, "Sam", at(9), 300), "second version")

	got, err := s.FetchByID(ctx, 1)
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if got.Transcript != "second version" || strings.Contains(got.Transcript, "first") {
		t.Fatalf("transcript = %q; want the second body only", got.Transcript)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("Count = %d; want 1", n)
	}
}

func TestStore_DerivesWordCountAndCreatedAt(t *testing.T) {
	store := newMemStore()
	s := newTestTranscripts(store, at(12))
	mustStore(t, s, callMeta(7, "Sam", at(9), 300), "a b ab hello")

	got, err := s.FetchByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if got.WordCount != 2 {
		t.Fatalf("WordCount = %d; want 2", got.WordCount)
	}
	if got.CreatedAt != at(12).Format(time.RFC3339) {
		t.Fatalf("CreatedAt = %q", got.CreatedAt)
	}
	if ttl := store.ttls[s.Cache.Keys.Transcript(7)]; ttl != DefaultTranscriptTTL {
		t.Fatalf("ttl = %v; want %v", ttl, DefaultTranscriptTTL)
	}
}

func TestStore_DegradedOutcomes(t *testing.T) {
	t.Run("record write fails", func(t *testing.T) {
		store := newMemStore()
		store.failSet = true
		s := newTestTranscripts(store, at(12))

		out := s.Store(context.Background(), callMeta(1, "Sam", at(9), 300), "text")
		if out.Status != StoreStatusDegraded || !out.IndexSkipped || !errors.Is(out.Err, errBackendDown) {
			t.Fatalf("outcome = %+v", out)
		}
		if len(store.idx[s.Cache.Keys.TranscriptIndex()]) != 0 {
			t.Fatalf("index must not be written after a failed record write")
		}
	})

	t.Run("index write fails", func(t *testing.T) {
		store := newMemStore()
		store.failIndex = true
		s := newTestTranscripts(store, at(12))

		out := s.Store(context.Background(), callMeta(2, "Sam", at(9), 300), "text")
		if !out.Degraded() || !out.IndexSkipped {
			t.Fatalf("outcome = %+v", out)
		}
		store.failIndex = false
		if _, err := s.FetchByID(context.Background(), 2); err != nil {
			t.Fatalf("record should still be readable: %v", err)
		}
	})
}

func TestStore_BackfilledCallStaysIndexed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := at(12)
	s := newTestTranscripts(store, now)

	old := now.Add(-120 * 24 * time.Hour)
	out := s.Store(ctx, callMeta(7, "Sam", old, 300), "asked about a refund, then a second refund")
	if out.Status != StoreStatusStored || out.IndexSkipped {
		t.Fatalf("outcome = %+v", out)
	}
	mustStore(t, s, callMeta(8, "Sam", at(9), 300), "today's call")

	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("Count = %d; want 2", n)
	}
	res, err := s.Search(ctx, "refund", SearchOptions{})
	if err != nil || len(res) != 1 || res[0].CallID != 7 || res[0].MatchCount != 2 {
		t.Fatalf("undated search = %+v, %v", res, err)
	}
	from := old.Truncate(24 * time.Hour)
	res, _ = s.Search(ctx, "refund", SearchOptions{FromDate: &from, ToDate: &from})
	if len(res) != 1 || res[0].CallID != 7 {
		t.Fatalf("dated search = %+v", res)
	}
}

func TestFetchByID_NotFound(t *testing.T) {
	s := newTestTranscripts(newMemStore(), at(12))
	if _, err := s.FetchByID(context.Background(), 404); !errors.Is(err, ErrTranscriptNotFound) {
		t.Fatalf("err = %v; want ErrTranscriptNotFound", err)
	}
}

func TestSearch_RanksByMatchCountNotRecency(t *testing.T) {
	s := newTestTranscripts(newMemStore(), at(18))
	mustStore(t, s, callMeta(1, "Sam", at(9), 300), "refund refund? yes a refund, REFUND, and one more Refund")
	mustStore(t, s, callMeta(2, "Sam", at(15), 300), "they asked for a refund once")

	res, err := s.Search(context.Background(), "refund", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 || res[0].CallID != 1 || res[1].CallID != 2 {
		t.Fatalf("order = %+v; want [1 2]", res)
	}
	if res[0].MatchCount != 5 || res[1].MatchCount != 1 {
		t.Fatalf("counts = %d, %d; want 5, 1", res[0].MatchCount, res[1].MatchCount)
	}
}

func TestSearch_GrandPrixScenario(t *testing.T) {
	s := newTestTranscripts(newMemStore(), at(18))
	mustStore(t, s, callMeta(1, "Sam", at(9), 600), "They loved the Grand Prix box last year and want the grand prix again.")
	mustStore(t, s, callMeta(2, "Alex", at(10), 600), "Talked about Wimbledon debentures only.")
	mustStore(t, s, callMeta(3, "Jo", at(11), 600), "Quick chat, mentioned the Grand Prix in passing.")

	res, err := s.Search(context.Background(), "Grand Prix", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("len = %d; want 2: %+v", len(res), res)
	}
	if res[0].CallID != 1 || res[0].MatchCount != 2 || res[1].CallID != 3 || res[1].MatchCount != 1 {
		t.Fatalf("results = %+v", res)
	}
}

func TestSearch_DateFilter(t *testing.T) {
	s := newTestTranscripts(newMemStore(), time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	d1 := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC)
	d3 := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	mustStore(t, s, callMeta(1, "Sam", d1, 300), "monaco monaco")
	mustStore(t, s, callMeta(2, "Sam", d2, 300), "monaco")
	mustStore(t, s, callMeta(3, "Sam", d3, 300), "monaco")

	from := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	res, err := s.Search(context.Background(), "monaco", SearchOptions{FromDate: &from, ToDate: &to})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].CallID != 2 {
		t.Fatalf("results = %+v; want only call 2", res)
	}

	res, _ = s.Search(context.Background(), "monaco", SearchOptions{ToDate: &to})
	if len(res) != 2 || res[0].CallID != 1 {
		t.Fatalf("open lower bound results = %+v", res)
	}

	res, _ = s.Search(context.Background(), "monaco", SearchOptions{FromDate: &to, ToDate: &from})
	if res == nil || len(res) != 0 {
		t.Fatalf("inverted range = %+v; want empty slice", res)
	}
}

func TestSearch_DateFilterUsesServiceLocation(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	s := newTestTranscripts(newMemStore(), time.Date(2025, 7, 5, 12, 0, 0, 0, london))
	s.Location = london

	// 23:30 UTC on the 3rd is 00:30 BST on the 4th
	late := time.Date(2025, 7, 3, 23, 30, 0, 0, time.UTC)
	mustStore(t, s, callMeta(1, "Sam", late, 300), "silverstone")
	mustStore(t, s, callMeta(2, "Sam", time.Date(2025, 7, 3, 12, 0, 0, 0, london), 300), "silverstone")

	d := time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	res, err := s.Search(context.Background(), "silverstone", SearchOptions{FromDate: &d, ToDate: &d})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].CallID != 1 {
		t.Fatalf("results = %+v; want only call 1", res)
	}
}

func TestSearch_FiltersAndLimit(t *testing.T) {
	s := newTestTranscripts(newMemStore(), at(23))
	for i := int64(1); i <= 45; i++ {
		m := callMeta(i, "Sam", day.Add(time.Duration(i)*time.Minute), 300)
		if i%3 == 0 {
			m.AgentName = "Alex"
		}
		if i%5 == 0 {
			m.Direction = domain.DirectionInbound
		}
		mustStore(t, s, m, "ascot enclosure")
	}

	res, err := s.Search(context.Background(), "ascot", SearchOptions{AgentName: "Alex", Direction: domain.DirectionInbound})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("filtered len = %d; want 3 (ids 15, 30, 45)", len(res))
	}
	for _, r := range res {
		if r.AgentName != "Alex" || r.Direction != domain.DirectionInbound {
			t.Fatalf("filter leaked %+v", r)
		}
	}

	res, _ = s.Search(context.Background(), "ascot", SearchOptions{Limit: 25})
	if len(res) != 25 || res[0].CallID != 45 {
		t.Fatalf("limit len = %d first = %d; want 25 most recent", len(res), res[0].CallID)
	}
}

func TestSearch_SkipsUnreadableAndDanglingCandidates(t *testing.T) {
	store := newMemStore()
	s := newTestTranscripts(store, at(18))
	mustStore(t, s, callMeta(1, "Sam", at(9), 300), "silverstone")
	mustStore(t, s, callMeta(2, "Sam", at(10), 300), "silverstone")
	store.badKeys[s.Cache.Keys.Transcript(2)] = true
	store.idx[s.Cache.Keys.TranscriptIndex()]["3"] = float64(at(11).Unix())
	store.idx[s.Cache.Keys.TranscriptIndex()]["bogus"] = float64(at(12).Unix())

	res, err := s.Search(context.Background(), "silverstone", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].CallID != 1 {
		t.Fatalf("results = %+v; want only call 1", res)
	}

	// records that are gone leave the index; unreadable ones stay
	idx := store.idx[s.Cache.Keys.TranscriptIndex()]
	for _, m := range []string{"3", "bogus"} {
		if _, ok := idx[m]; ok {
			t.Fatalf("dangling member %q still indexed", m)
		}
	}
	if _, ok := idx["2"]; !ok {
		t.Fatal("unreadable member 2 was pruned")
	}
	if n, _ := s.Count(context.Background()); n != 2 {
		t.Fatalf("Count = %d; want 2", n)
	}
}

func TestRecent_PrunesExpiredRecords(t *testing.T) {
	store := newMemStore()
	s := newTestTranscripts(store, at(18))
	mustStore(t, s, callMeta(1, "Sam", at(9), 300), "one")
	mustStore(t, s, callMeta(2, "Sam", at(10), 300), "two")
	delete(store.vals, s.Cache.Keys.Transcript(2))

	got, err := s.Recent(context.Background(), 10)
	if err != nil || len(got) != 1 || got[0].CallID != 1 {
		t.Fatalf("recent = %+v, %v", got, err)
	}
	if n, _ := s.Count(context.Background()); n != 1 {
		t.Fatalf("Count = %d; want expired call pruned", n)
	}
}

func TestSearch_IndexFailureAndEmptyInputs(t *testing.T) {
	store := newMemStore()
	s := newTestTranscripts(store, at(18))

	res, err := s.Search(context.Background(), "anything", SearchOptions{})
	if err != nil || res == nil || len(res) != 0 {
		t.Fatalf("empty index = %v, %v; want empty slice", res, err)
	}
	if res, _ := s.Search(context.Background(), "   ", SearchOptions{}); len(res) != 0 {
		t.Fatalf("blank keyword returned %+v", res)
	}

	store.failIndex = true
	if _, err := s.Search(context.Background(), "anything", SearchOptions{}); !errors.Is(err, errBackendDown) {
		t.Fatalf("err = %v; want index failure", err)
	}
}

func TestMatchTranscript_ExcerptMarkers(t *testing.T) {
	needle := []rune("grand prix")

	count, ex := matchTranscript("Grand Prix "+strings.Repeat("z", 200), needle)
	if count != 1 || strings.HasPrefix(ex, excerptMarker) || !strings.HasSuffix(ex, excerptMarker) {
		t.Fatalf("match at 0: count=%d excerpt=%q", count, ex)
	}

	text := strings.Repeat("x", 100) + " grand prix " + strings.Repeat("y", 100)
	count, ex = matchTranscript(text, needle)
	if count != 1 || !strings.HasPrefix(ex, excerptMarker) || !strings.HasSuffix(ex, excerptMarker) {
		t.Fatalf("mid match: excerpt=%q", ex)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(ex, excerptMarker), excerptMarker)
	if n := len([]rune(body)); n != 80+len(needle)+80 {
		t.Fatalf("excerpt body has %d runes; want %d", n, 80+len(needle)+80)
	}

	_, ex = matchTranscript("short grand prix text", needle)
	if ex != "short grand prix text" {
		t.Fatalf("untruncated excerpt = %q", ex)
	}
}

func TestMatchTranscript_NonOverlappingAndUnicode(t *testing.T) {
	if n, _ := matchTranscript("aaaa", []rune("aa")); n != 2 {
		t.Fatalf("count = %d; want 2 non-overlapping", n)
	}
	if n, ex := matchTranscript("Café CAFÉ café", []rune("café")); n != 3 || ex != "Café CAFÉ café" {
		t.Fatalf("unicode count = %d excerpt = %q", n, ex)
	}
	if n, _ := matchTranscript("nothing here", []rune("refund")); n != 0 {
		t.Fatalf("count = %d; want 0", n)
	}
}

func TestRecent_ReverseChronological(t *testing.T) {
	store := newMemStore()
	s := newTestTranscripts(store, at(18))
	mustStore(t, s, callMeta(1, "Sam", at(9), 300), "one")
	mustStore(t, s, callMeta(2, "Sam", at(11), 300), "two")
	mustStore(t, s, callMeta(3, "Sam", at(10), 300), "three")
	store.badKeys[s.Cache.Keys.Transcript(3)] = true

	got, err := s.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].CallID != 2 || got[1].CallID != 1 {
		t.Fatalf("recent = %+v; want [2 1]", got)
	}
}

func TestSearchResult_JSONShape(t *testing.T) {
	b, _ := json.Marshal(SearchResult{CallID: 5, MatchCount: 2, Excerpt: "x"})
	for _, k := range []string{`"callId":5`, `"matchCount":2`, `"excerpt":"x"`} {
		if !strings.Contains(string(b), k) {
			t.Fatalf("%s missing %s", b, k)
		}
	}
}

func TestSearchOptions_Filtered(t *testing.T) {
	d := day
	cases := []struct {
		opt  SearchOptions
		want bool
	}{
		{SearchOptions{}, false},
		{SearchOptions{Limit: 5}, false},
		{SearchOptions{FromDate: &d}, true},
		{SearchOptions{ToDate: &d}, true},
		{SearchOptions{AgentName: "Sam"}, true},
		{SearchOptions{Direction: domain.DirectionInbound}, true},
	}
	for _, tc := range cases {
		if got := tc.opt.Filtered(); got != tc.want {
			t.Fatalf("%+v.Filtered() = %v; want %v", tc.opt, got, tc.want)
		}
	}
}
