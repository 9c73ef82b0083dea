// Package services implements the call intelligence pipeline: transcript
// storage and search, per-call analysis, team digests, and the cache
// discipline that ties them together.
//
// This file centralizes the service-level error values so that handlers can
// map them to HTTP results consistently.
package services

import "errors"

var (
	// ErrTranscriptNotFound indicates that no transcript is stored for the call.
	ErrTranscriptNotFound = errors.New("transcript not found")

	// ErrCallNotFound indicates that the call source does not know the call.
	ErrCallNotFound = errors.New("call not found")

	// ErrTranscriptTooShort is returned when a transcript has too little text
	// to be worth analysing.
	ErrTranscriptTooShort = errors.New("transcript too short to analyse")

	// ErrCallTooShort is returned when a call is below the minimum duration
	// for analysis.
	ErrCallTooShort = errors.New("call too short to analyse")

	// ErrCallNotAnswered is returned for calls that never connected.
	ErrCallNotAnswered = errors.New("call was not answered")

	// ErrUnknownPeriod is returned for digest periods that are not recognised.
	ErrUnknownPeriod = errors.New("unknown digest period")

	// ErrInvalidCall is returned when call metadata fails validation.
	ErrInvalidCall = errors.New("invalid call metadata")

	// ErrGeneration wraps failures of the text-generation service itself
	// (transport, status, timeout).
	ErrGeneration = errors.New("text generation failed")

	// ErrMalformedResponse is returned when the text-generation service
	// replies with data that does not satisfy the expected schema.
	ErrMalformedResponse = errors.New("malformed analysis response")
)
