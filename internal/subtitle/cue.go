package subtitle

import (
	"strings"
	"time"
)

// DefaultMaxWordsPerCue is the merge threshold used when none is configured.
const DefaultMaxWordsPerCue = 5

// WordBoundary is the timing of one spoken word, in 100ns ticks.
type WordBoundary struct {
	Offset   int64
	Duration int64
	Text     string
}

// Cue is a single subtitle record.
type Cue struct {
	Index   int
	Start   time.Duration
	End     time.Duration
	Content string
}

// TicksToDuration converts engine ticks to a duration. Ticks are reduced to
// whole microseconds first, truncating toward zero, so 12 ticks is 1µs.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks/10) * time.Microsecond
}

// WordCount returns the number of whitespace separated tokens in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
