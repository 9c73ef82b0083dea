// Analysis and digest HTTP handlers.
//
//   - POST /calls/{id}/analysis   (analyse one call, cached)
//   - GET  /digests/{period}      (team digest for a named period, cached)
//
// Both accept ?force=true to bypass the cache. Cache hits are flagged with
// an X-Cache header as well as in the body.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/call-intel-backend/internal/domain"
	"github.com/tbourn/call-intel-backend/internal/services"
	"github.com/tbourn/call-intel-backend/internal/utils"
)

const headerCache = "X-Cache"

// AnalyseRequest optionally supplies the call data to analyse. When the body
// is omitted the call is resolved by ID.
type AnalyseRequest struct {
	Transcript  string `json:"transcript" example:"Hi Dana, it's Sam calling about the Grand Prix..."`
	AgentName   string `json:"agentName" example:"Sam Hill"`
	ContactName string `json:"contactName" example:"Dana Cole"`
	Duration    int    `json:"duration" example:"415"`
	Direction   string `json:"direction" example:"outbound" enums:"inbound,outbound"`
}

// AnalysisResponse wraps a call analysis.
type AnalysisResponse struct {
	Analysis *domain.CallAnalysis `json:"analysis"`
	Cached   bool                 `json:"cached" example:"true"`
}

// DigestResponse wraps a team digest.
type DigestResponse struct {
	Digest *domain.Digest `json:"digest"`
	Cached bool           `json:"cached" example:"false"`
}

func setCacheHeader(c *gin.Context, cached bool) {
	if cached {
		c.Header(headerCache, "HIT")
		return
	}
	c.Header(headerCache, "MISS")
}

// AnalyseCall godoc
// @ID          analyseCall
// @Summary     Analyse a call
// @Description Returns the structured analysis of one call. Results are cached per call;
// @Description force=true regenerates. Without a body the call and transcript are looked up by ID.
// @Tags        Analysis
// @Accept      json
// @Produce     json
// @Param       id     path   int                      true   "Call ID"  example(42)
// @Param       force  query  bool                     false  "Bypass the cache"
// @Param       body   body   handlers.AnalyseRequest  false  "Call data"
// @Success     200  {object}  handlers.AnalysisResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown call or no transcript"
// @Failure     422  {object}  handlers.ErrorResponse  "Call too short or not answered"
// @Failure     502  {object}  handlers.ErrorResponse  "Generation failed"
// @Router      /calls/{id}/analysis [post]
func (h *Handlers) AnalyseCall(c *gin.Context) {
	id, okID := callID(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	force := utils.BoolDefault(c.Query("force"), false)

	var req AnalyseRequest
	var (
		res    *domain.CallAnalysis
		cached bool
		err    error
	)
	switch bindErr := c.ShouldBindJSON(&req); {
	case errors.Is(bindErr, io.EOF):
		res, cached, err = h.pipeline.AnalyseByID(ctx, id, force)
	case bindErr != nil:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid analysis payload")
		return
	default:
		dir := strings.ToLower(strings.TrimSpace(req.Direction))
		if dir != "" && !domain.ValidDirection(dir) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "direction must be inbound or outbound")
			return
		}
		res, cached, err = h.pipeline.Analyse(ctx, services.AnalysisInput{
			CallID:      id,
			Transcript:  req.Transcript,
			AgentName:   strings.TrimSpace(req.AgentName),
			ContactName: strings.TrimSpace(req.ContactName),
			Duration:    req.Duration,
			Direction:   dir,
		}, force)
	}

	if err != nil {
		switch {
		case errors.Is(err, services.ErrTranscriptTooShort), errors.Is(err, services.ErrCallTooShort):
			fail(c, http.StatusUnprocessableEntity, ErrCodeTooShort, err.Error())
		case errors.Is(err, services.ErrCallNotAnswered):
			fail(c, http.StatusUnprocessableEntity, ErrCodeNotAnswered, err.Error())
		case errors.Is(err, services.ErrCallNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "call not found")
		case errors.Is(err, services.ErrTranscriptNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transcript not found")
		case errors.Is(err, services.ErrGeneration), errors.Is(err, services.ErrMalformedResponse):
			fail(c, http.StatusBadGateway, ErrCodeAnalysisFailed, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	setCacheHeader(c, cached)
	ok(c, http.StatusOK, AnalysisResponse{Analysis: res, Cached: cached})
}

// GetDigest godoc
// @ID          getDigest
// @Summary     Team digest for a period
// @Description Aggregates the analyses of meaningful calls in the period into a team digest.
// @Description A period with no qualifying calls yields a digest with totalCallsAnalysed=0.
// @Tags        Digests
// @Produce     json
// @Param       period  path   string  true   "Period"  Enums(today,yesterday,this_week,last_7_days)
// @Param       force   query  bool    false  "Bypass the cache"
// @Success     200  {object}  handlers.DigestResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown period"
// @Failure     502  {object}  handlers.ErrorResponse  "Generation failed"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /digests/{period} [get]
func (h *Handlers) GetDigest(c *gin.Context) {
	force := utils.BoolDefault(c.Query("force"), false)
	d, cached, err := h.pipeline.Digest(c.Request.Context(), c.Param("period"), force)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownPeriod):
			fail(c, http.StatusBadRequest, ErrCodeUnknownPeriod, "period must be one of "+strings.Join(services.Periods(), ", "))
		case errors.Is(err, services.ErrGeneration), errors.Is(err, services.ErrMalformedResponse):
			fail(c, http.StatusBadGateway, ErrCodeDigestFailed, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	setCacheHeader(c, cached)
	ok(c, http.StatusOK, DigestResponse{Digest: d, Cached: cached})
}
