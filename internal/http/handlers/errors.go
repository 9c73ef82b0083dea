// HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings. Clients branch on them
// rather than on messages. Generic codes mirror HTTP status semantics; the
// pipeline-specific ones distinguish "could not analyse" from "bad input".
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "too_short",
//	  "message": "transcript too short to analyse"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Pipeline-specific:
	ErrCodeTooShort       = "too_short"
	ErrCodeNotAnswered    = "not_answered"
	ErrCodeUnknownPeriod  = "unknown_period"
	ErrCodeAnalysisFailed = "analysis_failed"
	ErrCodeDigestFailed   = "digest_failed"
	ErrCodeSearchFailed   = "search_failed"
)
