// Transcript HTTP handlers.
//
// This file exposes REST endpoints for stored call transcripts:
//   - GET  /calls/transcripts          (keyword search; empty q lists recent)
//   - GET  /calls/transcripts/recent   (most recent transcripts)
//   - GET  /calls/transcripts/count    (number of indexed transcripts)
//   - GET  /calls/{id}/transcript      (one transcript)
//   - POST /calls/{id}/transcript      (store a transcript)
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/services"
	"github.com/tbourn/call-intel-backend/internal/utils"
)

const (
	defaultSearchLimit = services.DefaultSearchLimit
	maxSearchLimit     = 200
	maxRecentLimit     = 100
	previewRunes       = 160
)

//
// DTOs
//

// StoreTranscriptRequest is the JSON payload for storing a transcript. The
// call ID comes from the path.
type StoreTranscriptRequest struct {
	AgentName   string `json:"agentName" example:"Sam Hill"`
	ContactName string `json:"contactName" example:"Dana Cole"`
	// Duration in seconds.
	Duration  int    `json:"duration" example:"415"`
	Direction string `json:"direction" example:"outbound" enums:"inbound,outbound"`
	// StartedAt in unix seconds.
	StartedAt  int64  `json:"startedAt" example:"1751536800"`
	Transcript string `json:"transcript" binding:"required" example:"Hi Dana, it's Sam calling about the Grand Prix..."`
}

// StoreTranscriptResponse reports what was persisted.
type StoreTranscriptResponse struct {
	CallID       int64                `json:"callId" example:"42"`
	Status       services.StoreStatus `json:"status" example:"stored" enums:"stored,degraded"`
	IndexSkipped bool                 `json:"indexSkipped" example:"false"`
}

// SearchResponse is the envelope for search and recent listings.
type SearchResponse struct {
	Query   string                  `json:"query" example:"refund"`
	Count   int                     `json:"count" example:"2"`
	Results []services.SearchResult `json:"results"`
}

// RecentResponse lists full transcripts, most recent first.
type RecentResponse struct {
	Transcripts []domain.Transcript `json:"transcripts"`
}

// CountResponse carries the number of indexed transcripts.
type CountResponse struct {
	Count int64 `json:"count" example:"128"`
}

//
// Helpers
//

// callID parses the :id path parameter as a positive integer.
func callID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "call id must be a positive integer")
		return 0, false
	}
	return id, true
}

// searchOptions reads the optional filters of a search request.
func searchOptions(c *gin.Context) (services.SearchOptions, bool) {
	from, err := utils.ParseDay(c.Query("from"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from: "+err.Error())
		return services.SearchOptions{}, false
	}
	to, err := utils.ParseDay(c.Query("to"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to: "+err.Error())
		return services.SearchOptions{}, false
	}
	dir := strings.ToLower(strings.TrimSpace(c.Query("direction")))
	if dir != "" && !domain.ValidDirection(dir) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "direction must be inbound or outbound")
		return services.SearchOptions{}, false
	}
	return services.SearchOptions{
		FromDate:  from,
		ToDate:    to,
		AgentName: strings.TrimSpace(c.Query("agent")),
		Direction: dir,
		Limit:     utils.ClampInt(utils.AtoiDefault(c.Query("limit"), defaultSearchLimit), 1, maxSearchLimit),
	}, true
}

// preview converts a stored transcript into a result row with no matches and
// the opening of the transcript as its excerpt.
func preview(t domain.Transcript) services.SearchResult {
	text := strings.TrimSpace(t.Transcript)
	if utf8.RuneCountInString(text) > previewRunes {
		text = string([]rune(text)[:previewRunes]) + "..."
	}
	return services.SearchResult{
		CallID:      t.CallID,
		AgentName:   t.AgentName,
		ContactName: t.ContactName,
		Direction:   t.Direction,
		Duration:    t.Duration,
		StartedAt:   t.StartedAt,
		Excerpt:     text,
	}
}

//
// Handlers
//

// SearchTranscripts godoc
// @ID          searchTranscripts
// @Summary     Search call transcripts
// @Description Case-insensitive keyword search over stored transcripts, ranked by number of mentions.
// @Description With an empty q the most recent transcripts are listed instead; filters then
// @Description are rejected.
// @Tags        Transcripts
// @Produce     json
//
// @Param       q          query  string  false  "Keyword"                       example(refund)
// @Param       from       query  string  false  "First day (YYYY-MM-DD)"        example(2025-07-01)
// @Param       to         query  string  false  "Last day, inclusive"           example(2025-07-04)
// @Param       agent      query  string  false  "Exact agent name"
// @Param       direction  query  string  false  "inbound or outbound"           Enums(inbound,outbound)
// @Param       limit      query  int     false  "Max results (1..200)"          default(50)
//
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad filter, or filter without q"
// @Failure     500  {object}  handlers.ErrorResponse  "Index unavailable"
// @Router      /calls/transcripts [get]
func (h *Handlers) SearchTranscripts(c *gin.Context) {
	ctx := c.Request.Context()
	opt, okOpt := searchOptions(c)
	if !okOpt {
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		if opt.Filtered() {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from, to, agent and direction require a keyword (q)")
			return
		}
		recs, err := h.transcripts.Recent(ctx, opt.Limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
			return
		}
		rows := make([]services.SearchResult, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, preview(r))
		}
		ok(c, http.StatusOK, SearchResponse{Results: rows, Count: len(rows)})
		return
	}

	rows, err := h.transcripts.Search(ctx, q, opt)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}
	if rows == nil {
		rows = []services.SearchResult{}
	}
	ok(c, http.StatusOK, SearchResponse{Query: q, Count: len(rows), Results: rows})
}

// RecentTranscripts godoc
// @ID          recentTranscripts
// @Summary     List recent transcripts
// @Tags        Transcripts
// @Produce     json
// @Param       limit  query  int  false  "Max transcripts (1..100)"  default(20)
// @Success     200  {object}  handlers.RecentResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /calls/transcripts/recent [get]
func (h *Handlers) RecentTranscripts(c *gin.Context) {
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), services.DefaultRecentLimit), 1, maxRecentLimit)
	recs, err := h.transcripts.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if recs == nil {
		recs = []domain.Transcript{}
	}
	ok(c, http.StatusOK, RecentResponse{Transcripts: recs})
}

// CountTranscripts godoc
// @ID          countTranscripts
// @Summary     Count indexed transcripts
// @Tags        Transcripts
// @Produce     json
// @Success     200  {object}  handlers.CountResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /calls/transcripts/count [get]
func (h *Handlers) CountTranscripts(c *gin.Context) {
	n, err := h.transcripts.Count(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, CountResponse{Count: n})
}

// GetTranscript godoc
// @ID          getTranscript
// @Summary     Get a call transcript
// @Tags        Transcripts
// @Produce     json
// @Param       id  path  int  true  "Call ID"  example(42)
// @Success     200  {object}  domain.Transcript
// @Failure     400  {object}  handlers.ErrorResponse  "Bad call id"
// @Failure     404  {object}  handlers.ErrorResponse  "No transcript stored"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /calls/{id}/transcript [get]
func (h *Handlers) GetTranscript(c *gin.Context) {
	id, okID := callID(c)
	if !okID {
		return
	}
	rec, err := h.transcripts.FetchByID(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, rec)
	case errors.Is(err, services.ErrTranscriptNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "transcript not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// StoreTranscript godoc
// @ID          storeTranscript
// @Summary     Store a call transcript
// @Description Writes the transcript and indexes it by start time. Storage is best-effort:
// @Description the response is always 202 and status reports "degraded" when part of the write failed.
// @Tags        Transcripts
// @Accept      json
// @Produce     json
// @Param       id    path  int                               true  "Call ID"  example(42)
// @Param       body  body  handlers.StoreTranscriptRequest  true  "Call metadata and transcript"
// @Success     202  {object}  handlers.StoreTranscriptResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Router      /calls/{id}/transcript [post]
func (h *Handlers) StoreTranscript(c *gin.Context) {
	id, okID := callID(c)
	if !okID {
		return
	}
	var req StoreTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript required")
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "transcript required")
		return
	}

	meta := domain.CallMeta{
		CallID:      id,
		AgentName:   strings.TrimSpace(req.AgentName),
		ContactName: strings.TrimSpace(req.ContactName),
		Duration:    req.Duration,
		Direction:   strings.ToLower(strings.TrimSpace(req.Direction)),
		StartedAt:   req.StartedAt,
		Answered:    true,
	}
	if err := services.ValidateCall(meta); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	out := h.transcripts.Store(c.Request.Context(), meta, req.Transcript)
	if out.Degraded() {
		lg := requestLogger(c)
		lg.Warn().Err(out.Err).Int64("call_id", id).Bool("index_skipped", out.IndexSkipped).Msg("transcript stored degraded")
	}
	accepted(c, StoreTranscriptResponse{CallID: id, Status: out.Status, IndexSkipped: out.IndexSkipped})
}
