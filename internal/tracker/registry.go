package tracker

import (
	"log/slog"
	"sync"
	"time"
)

// Viewer holds one browser's view-models. The two grids keep independent
// copies of the roster.
type Viewer struct {
	ID         string
	Attendance *AttendanceGrid
	Fees       *FeeGrid

	lastSeen time.Time
}

// ViewerFactory builds a fresh Viewer for id.
type ViewerFactory func(id string) *Viewer

// Registry keeps a Viewer per viewer id and evicts idle ones. At most max
// viewers are live; a new id past that evicts the least recently seen.
type Registry struct {
	mu      sync.Mutex
	viewers map[string]*Viewer
	factory ViewerFactory
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// NewRegistry returns a registry holding up to max viewers. max <= 0 means
// no cap.
func NewRegistry(factory ViewerFactory, ttl time.Duration, max int) *Registry {
	return &Registry{
		viewers: make(map[string]*Viewer),
		factory: factory,
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// NewViewerFactory returns a factory whose grids share the given data
// provider and sequencer. Attendance opens on the current month and fees on
// the current month clamped to epoch.
func NewViewerFactory(members Members, attendance AttendanceRows, fees FeeRows, seq *Sequencer, epoch Month, logger *slog.Logger) ViewerFactory {
	return func(id string) *Viewer {
		now := MonthOf(time.Now())
		l := logger.With("viewer", id)
		return &Viewer{
			ID:         id,
			Attendance: NewAttendanceGrid(members, attendance, fees, seq, now, l.With("grid", "attendance")),
			Fees:       NewFeeGrid(members, fees, seq, epoch, now, l.With("grid", "fees")),
		}
	}
}

// Get returns the viewer for id, creating it on first use.
func (r *Registry) Get(id string) *Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.viewers[id]
	if !ok {
		if r.max > 0 && len(r.viewers) >= r.max {
			r.evictOldest()
		}
		v = r.factory(id)
		r.viewers[id] = v
	}
	v.lastSeen = r.now()
	return v
}

func (r *Registry) evictOldest() {
	var oldest string
	var seen time.Time
	for id, v := range r.viewers {
		if oldest == "" || v.lastSeen.Before(seen) {
			oldest, seen = id, v.lastSeen
		}
	}
	delete(r.viewers, oldest)
}

// Sweep drops viewers not seen within the TTL and returns how many it dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	n := 0
	for id, v := range r.viewers {
		if v.lastSeen.Before(cutoff) {
			delete(r.viewers, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}
