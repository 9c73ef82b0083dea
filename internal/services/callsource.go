package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/call-intel-backend/internal/domain"
)

// CallSource is the telephony side of the pipeline: it knows which calls
// happened and can supply their transcripts.
type CallSource interface {
	// Call returns the metadata of one call or ErrCallNotFound.
	Call(ctx context.Context, callID int64) (domain.CallMeta, error)
	// CallsBetween lists calls started within [from, to].
	CallsBetween(ctx context.Context, from, to time.Time) ([]domain.CallMeta, error)
	// Transcript returns the transcript text or ErrTranscriptNotFound.
	Transcript(ctx context.Context, callID int64) (string, error)
}

// StoredCalls is a CallSource backed by the transcript store: every call
// that was ingested with a transcript is an answered call.
type StoredCalls struct {
	Transcripts *TranscriptService
}

func (s StoredCalls) Call(ctx context.Context, callID int64) (domain.CallMeta, error) {
	rec, err := s.Transcripts.FetchByID(ctx, callID)
	if err != nil {
		if errors.Is(err, ErrTranscriptNotFound) {
			return domain.CallMeta{}, ErrCallNotFound
		}
		return domain.CallMeta{}, err
	}
	return rec.Meta(), nil
}

func (s StoredCalls) CallsBetween(ctx context.Context, from, to time.Time) ([]domain.CallMeta, error) {
	recs, err := s.Transcripts.Between(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CallMeta, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Meta())
	}
	return out, nil
}

func (s StoredCalls) Transcript(ctx context.Context, callID int64) (string, error) {
	rec, err := s.Transcripts.FetchByID(ctx, callID)
	if err != nil {
		return "", err
	}
	return rec.Transcript, nil
}

// ValidateCall checks the metadata a transcript record is keyed and indexed
// by. An empty direction is accepted; providers omit it for internal calls.
func ValidateCall(meta domain.CallMeta) error {
	switch {
	case meta.CallID <= 0:
		return fmt.Errorf("%w: call id must be positive", ErrInvalidCall)
	case meta.Duration < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidCall)
	case meta.StartedAt < 0:
		return fmt.Errorf("%w: negative start time", ErrInvalidCall)
	case meta.Direction != "" && !domain.ValidDirection(meta.Direction):
		return fmt.Errorf("%w: direction %q", ErrInvalidCall, meta.Direction)
	}
	return nil
}
