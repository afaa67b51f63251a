// Package credstore persists the outcome of an OAuth callback: the raw token
// payload, and the rotated refresh token for the next process start.
// Every write here is best-effort and never authoritative.
package credstore

import (
	"context"
	stderrors "errors"
	"time"

	"schwabgw/internal/schwab"
)

// TokenRecord is what a callback leaves behind. A nil State is written as null.
type TokenRecord struct {
	Code    string              `json:"code"`
	State   *string             `json:"state"`
	Tokens  schwab.TokenPayload `json:"tokens"`
	SavedAt time.Time           `json:"saved_at"`
}

// Sink stores a TokenRecord.
type Sink interface {
	Save(ctx context.Context, rec TokenRecord) error
}

// Rotator writes a new refresh token where the next start will read it.
// It reports whether anything was written.
type Rotator interface {
	RotateRefreshToken(ctx context.Context, token string) (bool, error)
}

// MultiSink saves to every sink and joins their errors.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, rec TokenRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
