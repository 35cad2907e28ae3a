// Package timer provides a coarse wall clock shared by all connections. It is used for
// I/O deadlines, stall detection and the Date response header, none of which need
// precision better than Resolution.
package timer

import (
	"sync/atomic"
	"time"
)

const (
	// Resolution is the frequency at which time is updated.
	Resolution = 500 * time.Millisecond
	// DateLayout is the IMF-fixdate layout used in HTTP headers.
	DateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"
)

var (
	millis = new(atomic.Int64)
	date   = new(atomic.Pointer[string])
)

func Now() time.Time {
	ms := millis.Load()
	return time.Unix(ms/1000, (ms%1000)*1e6)
}

// Date returns the current time formatted as an IMF-fixdate.
func Date() string {
	return *date.Load()
}

func tick(now time.Time) {
	millis.Store(now.UnixMilli())
	formatted := now.UTC().Format(DateLayout)
	date.Store(&formatted)
}

func init() {
	// the first tick is synchronous, otherwise early callers would see the zero time
	tick(time.Now())

	go func() {
		for {
			time.Sleep(Resolution)
			tick(time.Now())
		}
	}()
}
