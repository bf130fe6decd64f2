package store

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Outbox wraps a Store with bounded retry. Delivery stays at-most-once per
// attempt window: after the final attempt fails the incident is dropped with
// a log line, never queued forever.
type Outbox struct {
	next     Store
	attempts int
	backoff  time.Duration
}

var _ Store = (*Outbox)(nil)

// NewOutbox wraps next with up to attempts tries, sleeping backoff*n between
// try n and n+1.
func NewOutbox(next Store, attempts int, backoff time.Duration) *Outbox {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Outbox{next: next, attempts: attempts, backoff: backoff}
}

// Store retries the wrapped store until it succeeds or attempts run out.
func (o *Outbox) Store(ctx context.Context, meta Metadata, videoPath string) error {
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		lastErr = o.next.Store(ctx, meta, videoPath)
		if lastErr == nil {
			return nil
		}
		if attempt < o.attempts {
			log.Printf("[Store] attempt %d/%d for incident %s failed: %v",
				attempt, o.attempts, meta.IncidentID, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.backoff * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("store gave up after %d attempts: %w", o.attempts, lastErr)
}
