package copier

import "time"

type Verdict int

const (
	// Continue polling; progress was recorded.
	Continue Verdict = iota
	// Retry the stats query on the next poll.
	Retry
	TimedOut
	Stalled
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Retry:
		return "retry"
	case TimedOut:
		return "timed_out"
	case Stalled:
		return "stalled"
	}
	return "unknown"
}

// Observation is what one poll of the copier saw.
type Observation struct {
	Elapsed  time.Duration
	Previous int64
	Current  int64
	Stalls   int
	// QueryFailed is set when the stats endpoint could not be read;
	// Current is meaningless then.
	QueryFailed bool
}

// Policy decides, poll by poll, whether a copy job is still worth waiting
// for. The timeout only applies while the stats endpoint is unreachable;
// a reachable copier is judged by its progress alone.
type Policy struct {
	Timeout        time.Duration
	StallThreshold int
}

// Decide returns the verdict for one observation and the updated count
// of consecutive polls without progress.
func (p Policy) Decide(o Observation) (Verdict, int) {
	if o.QueryFailed {
		if o.Elapsed > p.Timeout {
			return TimedOut, o.Stalls
		}
		return Retry, o.Stalls
	}

	stalls := 0
	if o.Current == o.Previous {
		stalls = o.Stalls + 1
	}
	if stalls >= p.StallThreshold {
		return Stalled, stalls
	}
	return Continue, stalls
}

// Progressed returns how many bytes to add to the running total when the
// counter moves from previous to current. The copier's counter can roll
// back when it starts a new batch; the new reading then counts in full.
func Progressed(previous, current int64) int64 {
	delta := current - previous
	if delta < 0 {
		return current
	}
	return delta
}
