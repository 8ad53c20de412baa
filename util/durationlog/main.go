// Package durationlog
package durationlog

import (
	"context"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

type (
	T struct {
		Log zerolog.Logger
	}

	stringer interface {
		String() string
	}
)

// WarnExceeded logs when the delay between <-begin and <-end exceeds
// maxDuration. kind tags the log entries with the watched activity.
func (t *T) WarnExceeded(ctx context.Context, begin <-chan interface{}, end <-chan bool, maxDuration time.Duration, kind string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var startTime time.Time
	var cmd interface{}
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-begin:
			startTime = time.Now()
			cmd = c
		case <-end:
			cmd = nil
		case <-ticker.C:
			if cmd != nil && time.Since(startTime) > maxDuration {
				duration := time.Since(startTime)
				switch c := cmd.(type) {
				case stringer:
					t.Log.Warn().Str("kind", kind).Msgf("max duration exceeded %s: %s", duration, c.String())
				default:
					t.Log.Warn().Str("kind", kind).Msgf("max duration exceeded %s: %s", duration, reflect.TypeOf(cmd))
				}
			}
		}
	}
}
