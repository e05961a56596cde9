package tcp

import (
	"testing"
	"time"

	"github.com/zavakid/tiny-http/internal/timer"
)

// The deadline has to be set on every read from socket, so the clock is read on a hot path.
// Reads use the precise clock though, as the coarse one may lag behind for longer than a
// short timeout lasts.
func BenchmarkTimeNow(b *testing.B) {
	b.Run("time", func(b *testing.B) {
		for range b.N {
			time.Now().Add(5 * time.Second)
		}
	})

	b.Run("coarse timer", func(b *testing.B) {
		for range b.N {
			timer.Now().Add(5 * time.Second)
		}
	})
}
