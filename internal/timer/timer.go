package timer

import (
	"sync/atomic"
	"time"
)

// Time contains the unix-time in milliseconds updated every [Resolution] milliseconds
var Time = new(atomic.Int64)

var date atomic.Pointer[string]

func Now() time.Time {
	millis := Time.Load()
	return time.Unix(millis/1000, (millis%1000)*1e6)
}

// Date returns the current time formatted for the Date header. The value is refreshed along
// with Time, which is more than enough as the header has a second precision.
func Date() string {
	return *date.Load()
}

// the IMF-fixdate layout
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Resolution is the frequency at which time is updated. Default 500ms are
// precise enough for setting I/O deadlines
const Resolution = 500 * time.Millisecond

func tick() {
	now := time.Now()
	Time.Store(now.UnixMilli())
	formatted := now.UTC().Format(dateLayout)
	date.Store(&formatted)
}

func init() {
	// the ticker goroutine isn't guaranteed to be scheduled immediately, so the first value
	// is stored synchronously
	tick()

	go func() {
		for {
			time.Sleep(Resolution)
			tick()
		}
	}()
}
