package tracker

import (
	"sync/atomic"
	"time"
)

// Sequencer issues write revisions. Revisions strictly increase within a
// process and start from wall-clock nanoseconds. Observe raises the floor to
// revisions already stored, so a clock running behind them cannot make new
// writes lose the revision guard.
type Sequencer struct {
	last atomic.Int64
}

func NewSequencer(now time.Time) *Sequencer {
	s := &Sequencer{}
	s.last.Store(now.UnixNano())
	return s
}

func (s *Sequencer) Next() int64 {
	return s.last.Add(1)
}

// Observe makes every later revision greater than rev.
func (s *Sequencer) Observe(rev int64) {
	for {
		cur := s.last.Load()
		if rev <= cur || s.last.CompareAndSwap(cur, rev) {
			return
		}
	}
}
