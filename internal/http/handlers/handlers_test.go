package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/services"
)

// ---------- test plumbing ----------

type stubTranscripts struct {
	stored  []domain.CallMeta
	outcome services.StoreOutcome
	recs    map[int64]domain.Transcript
	recent  []domain.Transcript
	results []services.SearchResult
	lastQ   string
	lastOpt services.SearchOptions
	count   int64
	err     error
}

func (s *stubTranscripts) Store(_ context.Context, meta domain.CallMeta, _ string) services.StoreOutcome {
	s.stored = append(s.stored, meta)
	if s.outcome.Status == "" {
		return services.StoreOutcome{Status: services.StoreStatusStored}
	}
	return s.outcome
}

func (s *stubTranscripts) FetchByID(_ context.Context, id int64) (*domain.Transcript, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.recs[id]
	if !ok {
		return nil, services.ErrTranscriptNotFound
	}
	return &rec, nil
}

func (s *stubTranscripts) Count(context.Context) (int64, error) { return s.count, s.err }

func (s *stubTranscripts) Recent(_ context.Context, limit int) ([]domain.Transcript, error) {
	s.lastOpt.Limit = limit
	if len(s.recent) > limit {
		return s.recent[:limit], s.err
	}
	return s.recent, s.err
}

func (s *stubTranscripts) Search(_ context.Context, q string, opt services.SearchOptions) ([]services.SearchResult, error) {
	s.lastQ, s.lastOpt = q, opt
	return s.results, s.err
}

type stubPipeline struct {
	analyse     func(in services.AnalysisInput, force bool) (*domain.CallAnalysis, bool, error)
	analyseByID func(id int64, force bool) (*domain.CallAnalysis, bool, error)
	digest      func(period string, force bool) (*domain.Digest, bool, error)
}

func (s stubPipeline) Analyse(_ context.Context, in services.AnalysisInput, force bool) (*domain.CallAnalysis, bool, error) {
	return s.analyse(in, force)
}

func (s stubPipeline) AnalyseByID(_ context.Context, id int64, force bool) (*domain.CallAnalysis, bool, error) {
	return s.analyseByID(id, force)
}

func (s stubPipeline) Digest(_ context.Context, period string, force bool) (*domain.Digest, bool, error) {
	return s.digest(period, force)
}

func newRouter(ts TranscriptService, ps PipelineService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(ts, ps)
	r.GET("/calls/transcripts", h.SearchTranscripts)
	r.GET("/calls/transcripts/recent", h.RecentTranscripts)
	r.GET("/calls/transcripts/count", h.CountTranscripts)
	r.GET("/calls/:id/transcript", h.GetTranscript)
	r.POST("/calls/:id/transcript", h.StoreTranscript)
	r.POST("/calls/:id/analysis", h.AnalyseCall)
	r.GET("/digests/:period", h.GetDigest)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return er.Code
}

func noPipeline() stubPipeline {
	boom := func() error { return errors.New("pipeline should not be called") }
	return stubPipeline{
		analyse: func(services.AnalysisInput, bool) (*domain.CallAnalysis, bool, error) {
			return nil, false, boom()
		},
		analyseByID: func(int64, bool) (*domain.CallAnalysis, bool, error) { return nil, false, boom() },
		digest:      func(string, bool) (*domain.Digest, bool, error) { return nil, false, boom() },
	}
}

// ---------- transcripts ----------

func TestSearchTranscripts_PassesFilters(t *testing.T) {
	ts := &stubTranscripts{results: []services.SearchResult{{CallID: 7, MatchCount: 3}}}
	r := newRouter(ts, noPipeline())

	w := do(r, http.MethodGet, "/calls/transcripts?q=%20refund%20&from=2025-07-01&to=2025-07-04&agent=Sam&direction=Inbound&limit=999", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ts.lastQ != "refund" {
		t.Fatalf("q = %q", ts.lastQ)
	}
	opt := ts.lastOpt
	if opt.FromDate == nil || opt.FromDate.Format("2006-01-02") != "2025-07-01" || opt.ToDate == nil {
		t.Fatalf("dates = %v %v", opt.FromDate, opt.ToDate)
	}
	if opt.AgentName != "Sam" || opt.Direction != domain.DirectionInbound || opt.Limit != maxSearchLimit {
		t.Fatalf("opts = %+v", opt)
	}

	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Query != "refund" || resp.Count != 1 || resp.Results[0].CallID != 7 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSearchTranscripts_NoMatchesIsEmptyArray(t *testing.T) {
	r := newRouter(&stubTranscripts{}, noPipeline())
	w := do(r, http.MethodGet, "/calls/transcripts?q=nothing", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSearchTranscripts_FiltersWithoutKeywordRejected(t *testing.T) {
	for _, q := range []string{
		"from=2025-07-01",
		"to=2025-07-04",
		"agent=Sam",
		"direction=inbound",
		"q=%20%20&agent=Sam",
	} {
		ts := &stubTranscripts{recent: []domain.Transcript{{CallID: 1}}}
		r := newRouter(ts, noPipeline())
		w := do(r, http.MethodGet, "/calls/transcripts?"+q, "")
		if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
			t.Fatalf("%s: status=%d body=%s", q, w.Code, w.Body.String())
		}
		if ts.lastOpt.Limit != 0 {
			t.Fatalf("%s: Recent should not be called", q)
		}
	}

	// limit alone still lists recent transcripts
	ts := &stubTranscripts{recent: []domain.Transcript{{CallID: 1}}}
	w := do(newRouter(ts, noPipeline()), http.MethodGet, "/calls/transcripts?limit=5", "")
	if w.Code != http.StatusOK || ts.lastOpt.Limit != 5 {
		t.Fatalf("limit only: status=%d limit=%d", w.Code, ts.lastOpt.Limit)
	}
}

func TestSearchTranscripts_EmptyQueryListsRecent(t *testing.T) {
	long := strings.Repeat("word ", 100)
	ts := &stubTranscripts{recent: []domain.Transcript{
		{CallID: 2, AgentName: "Jo", Transcript: long},
		{CallID: 1, AgentName: "Sam", Transcript: "short"},
	}}
	r := newRouter(ts, noPipeline())

	w := do(r, http.MethodGet, "/calls/transcripts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 || resp.Results[0].CallID != 2 || resp.Results[0].MatchCount != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.HasSuffix(resp.Results[0].Excerpt, "...") || resp.Results[1].Excerpt != "short" {
		t.Fatalf("excerpts = %q / %q", resp.Results[0].Excerpt, resp.Results[1].Excerpt)
	}
	if ts.lastQ != "" {
		t.Fatalf("Search should not be called for an empty query")
	}
	if ts.lastOpt.Limit != defaultSearchLimit {
		t.Fatalf("limit = %d", ts.lastOpt.Limit)
	}
}

func TestSearchTranscripts_BadFilters(t *testing.T) {
	r := newRouter(&stubTranscripts{}, noPipeline())
	for _, q := range []string{"from=07/01/2025", "to=2025-13-01", "direction=sideways"} {
		w := do(r, http.MethodGet, "/calls/transcripts?q=x&"+q, "")
		if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
			t.Fatalf("%s: status=%d body=%s", q, w.Code, w.Body.String())
		}
	}
}

func TestSearchTranscripts_IndexFailure(t *testing.T) {
	r := newRouter(&stubTranscripts{err: errors.New("redis down")}, noPipeline())
	w := do(r, http.MethodGet, "/calls/transcripts?q=x", "")
	if w.Code != http.StatusInternalServerError || errCode(t, w) != ErrCodeSearchFailed {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRecentAndCount(t *testing.T) {
	ts := &stubTranscripts{count: 12, recent: []domain.Transcript{{CallID: 1}, {CallID: 2}, {CallID: 3}}}
	r := newRouter(ts, noPipeline())

	w := do(r, http.MethodGet, "/calls/transcripts/recent?limit=2", "")
	var rr RecentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rr)
	if w.Code != http.StatusOK || len(rr.Transcripts) != 2 {
		t.Fatalf("recent: status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/calls/transcripts/recent?limit=0", "")
	if w.Code != http.StatusOK || ts.lastOpt.Limit != 1 {
		t.Fatalf("limit should clamp to 1, got %d", ts.lastOpt.Limit)
	}

	w = do(r, http.MethodGet, "/calls/transcripts/count", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":12`) {
		t.Fatalf("count: status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(newRouter(&stubTranscripts{err: errors.New("down")}, noPipeline()), http.MethodGet, "/calls/transcripts/count", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("count failure status=%d", w.Code)
	}
}

func TestGetTranscript(t *testing.T) {
	ts := &stubTranscripts{recs: map[int64]domain.Transcript{42: {CallID: 42, Transcript: "hello there"}}}
	r := newRouter(ts, noPipeline())

	w := do(r, http.MethodGet, "/calls/42/transcript", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"callId":42`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodGet, "/calls/43/transcript", "")
	if w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
	for _, bad := range []string{"abc", "0", "-4"} {
		w = do(r, http.MethodGet, "/calls/"+bad+"/transcript", "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("id %q: status=%d", bad, w.Code)
		}
	}
}

func TestStoreTranscript(t *testing.T) {
	ts := &stubTranscripts{}
	r := newRouter(ts, noPipeline())

	body := `{"agentName":" Sam Hill ","contactName":"Dana","duration":415,"direction":"OUTBOUND","startedAt":1751536800,"transcript":"Hi Dana"}`
	w := do(r, http.MethodPost, "/calls/42/transcript", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp StoreTranscriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.CallID != 42 || resp.Status != services.StoreStatusStored || resp.IndexSkipped {
		t.Fatalf("resp = %+v", resp)
	}
	got := ts.stored[0]
	if got.CallID != 42 || got.AgentName != "Sam Hill" || got.Direction != domain.DirectionOutbound || !got.Answered {
		t.Fatalf("meta = %+v", got)
	}
}

func TestStoreTranscript_DegradedStillAccepted(t *testing.T) {
	ts := &stubTranscripts{outcome: services.StoreOutcome{
		Status: services.StoreStatusDegraded, IndexSkipped: true, Err: errors.New("redis down"),
	}}
	r := newRouter(ts, noPipeline())

	w := do(r, http.MethodPost, "/calls/5/transcript", `{"transcript":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"degraded"`) || !strings.Contains(w.Body.String(), `"indexSkipped":true`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestStoreTranscript_Validation(t *testing.T) {
	ts := &stubTranscripts{}
	r := newRouter(ts, noPipeline())
	cases := map[string]string{
		"missing transcript": `{"agentName":"Sam"}`,
		"blank transcript":   `{"transcript":"   "}`,
		"bad direction":      `{"transcript":"hi","direction":"up"}`,
		"negative duration":  `{"transcript":"hi","duration":-3}`,
		"not json":           `transcript=hi`,
	}
	for name, body := range cases {
		w := do(r, http.MethodPost, "/calls/9/transcript", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", name, w.Code, w.Body.String())
		}
	}
	if len(ts.stored) != 0 {
		t.Fatalf("invalid payloads must not be stored: %+v", ts.stored)
	}
}

// ---------- analysis ----------

func TestAnalyseCall_WithBody(t *testing.T) {
	var got services.AnalysisInput
	var gotForce bool
	ps := noPipeline()
	ps.analyse = func(in services.AnalysisInput, force bool) (*domain.CallAnalysis, bool, error) {
		got, gotForce = in, force
		return &domain.CallAnalysis{CallID: in.CallID, Summary: "ok"}, false, nil
	}
	r := newRouter(&stubTranscripts{}, ps)

	w := do(r, http.MethodPost, "/calls/42/analysis?force=true",
		`{"transcript":"long enough text","agentName":"Sam","duration":300,"direction":"inbound"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.CallID != 42 || got.AgentName != "Sam" || got.Duration != 300 || !gotForce {
		t.Fatalf("input = %+v force=%v", got, gotForce)
	}
	if w.Header().Get(headerCache) != "MISS" || !strings.Contains(w.Body.String(), `"cached":false`) {
		t.Fatalf("cache flags: %q %s", w.Header().Get(headerCache), w.Body.String())
	}
}

func TestAnalyseCall_WithoutBodyResolvesByID(t *testing.T) {
	var gotID int64
	ps := noPipeline()
	ps.analyseByID = func(id int64, force bool) (*domain.CallAnalysis, bool, error) {
		gotID = id
		return &domain.CallAnalysis{CallID: id}, true, nil
	}
	r := newRouter(&stubTranscripts{}, ps)

	w := do(r, http.MethodPost, "/calls/77/analysis", "")
	if w.Code != http.StatusOK || gotID != 77 {
		t.Fatalf("status=%d id=%d body=%s", w.Code, gotID, w.Body.String())
	}
	if w.Header().Get(headerCache) != "HIT" {
		t.Fatalf("X-Cache = %q", w.Header().Get(headerCache))
	}
}

func TestAnalyseCall_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrTranscriptTooShort, http.StatusUnprocessableEntity, ErrCodeTooShort},
		{services.ErrCallTooShort, http.StatusUnprocessableEntity, ErrCodeTooShort},
		{services.ErrCallNotAnswered, http.StatusUnprocessableEntity, ErrCodeNotAnswered},
		{services.ErrCallNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrTranscriptNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: %w", services.ErrGeneration, errors.New("529")), http.StatusBadGateway, ErrCodeAnalysisFailed},
		{services.ErrMalformedResponse, http.StatusBadGateway, ErrCodeAnalysisFailed},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		ps := noPipeline()
		ps.analyseByID = func(int64, bool) (*domain.CallAnalysis, bool, error) { return nil, false, tc.err }
		w := do(newRouter(&stubTranscripts{}, ps), http.MethodPost, "/calls/1/analysis", "")
		if w.Code != tc.status || errCode(t, w) != tc.code {
			t.Fatalf("%v: status=%d body=%s", tc.err, w.Code, w.Body.String())
		}
	}
}

func TestAnalyseCall_BadPayload(t *testing.T) {
	r := newRouter(&stubTranscripts{}, noPipeline())
	for _, body := range []string{`{"transcript":`, `{"transcript":"x","direction":"diagonal"}`} {
		w := do(r, http.MethodPost, "/calls/1/analysis", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", body, w.Code)
		}
	}
}

// ---------- digests ----------

func TestGetDigest(t *testing.T) {
	var gotPeriod string
	var gotForce bool
	ps := noPipeline()
	ps.digest = func(period string, force bool) (*domain.Digest, bool, error) {
		gotPeriod, gotForce = period, force
		d := &domain.Digest{Period: "Today", GeneratedAt: time.Now().UTC().Format(time.RFC3339), TeamSummary: "No calls yet."}
		d.Normalize()
		return d, false, nil
	}
	r := newRouter(&stubTranscripts{}, ps)

	w := do(r, http.MethodGet, "/digests/today?force=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotPeriod != "today" || !gotForce {
		t.Fatalf("period=%q force=%v", gotPeriod, gotForce)
	}
	if !strings.Contains(w.Body.String(), `"totalCallsAnalysed":0`) || !strings.Contains(w.Body.String(), `"keyDeals":[]`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestGetDigest_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrUnknownPeriod, http.StatusBadRequest, ErrCodeUnknownPeriod},
		{fmt.Errorf("%w: timeout", services.ErrGeneration), http.StatusBadGateway, ErrCodeDigestFailed},
		{services.ErrMalformedResponse, http.StatusBadGateway, ErrCodeDigestFailed},
		{errors.New("index unavailable"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		ps := noPipeline()
		ps.digest = func(string, bool) (*domain.Digest, bool, error) { return nil, false, tc.err }
		w := do(newRouter(&stubTranscripts{}, ps), http.MethodGet, "/digests/fortnight", "")
		if w.Code != tc.status || errCode(t, w) != tc.code {
			t.Fatalf("%v: status=%d body=%s", tc.err, w.Code, w.Body.String())
		}
	}
}
