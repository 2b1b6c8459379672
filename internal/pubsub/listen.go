package pubsub

import (
	"context"
	"time"
)

// Next waits for the next event on ch. It returns false when ctx is done or
// the channel has been closed.
func Next[T any](ctx context.Context, ch <-chan Event[T]) (Event[T], bool) {
	select {
	case <-ctx.Done():
		return Event[T]{}, false
	case event, ok := <-ch:
		return event, ok
	}
}

// Collect drains events from ch until the channel goes quiet for idle or
// ctx is done, returning everything received. Intended for tests and
// short-lived CLI inspection.
func Collect[T any](ctx context.Context, ch <-chan Event[T], idle time.Duration) []Event[T] {
	var out []Event[T]
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return out
		case <-timer.C:
			return out
		case event, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, event)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		}
	}
}
