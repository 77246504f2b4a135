package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetAndSweep(t *testing.T) {
	p := newFakeProvider("Ann")
	factory := NewViewerFactory(p, attendanceRows{p}, feeRows{p}, NewSequencer(time.Now()), DefaultFeeEpoch, testLogger())
	r := NewRegistry(factory, time.Hour, 0)

	now := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	a := r.Get("a")
	require.NotNil(t, a.Attendance)
	require.NotNil(t, a.Fees)
	assert.Same(t, a, r.Get("a"))
	assert.NotSame(t, a.Attendance, r.Get("b").Attendance)
	assert.Equal(t, 2, r.Len())

	now = now.Add(45 * time.Minute)
	r.Get("b")
	now = now.Add(30 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.NotSame(t, a, r.Get("a"), "evicted viewer is rebuilt")
}

func TestRegistry_CapEvictsLeastRecentlySeen(t *testing.T) {
	p := newFakeProvider("Ann")
	factory := NewViewerFactory(p, attendanceRows{p}, feeRows{p}, NewSequencer(time.Now()), DefaultFeeEpoch, testLogger())
	r := NewRegistry(factory, time.Hour, 2)

	now := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	tick := func() { now = now.Add(time.Second) }

	a := r.Get("a")
	tick()
	b := r.Get("b")
	tick()
	r.Get("a")
	tick()

	c := r.Get("c")
	tick()
	assert.Equal(t, 2, r.Len())
	assert.Same(t, a, r.Get("a"), "recently seen viewer is kept")
	tick()
	assert.Same(t, c, r.Get("c"))
	tick()

	// Cookieless requests each mint a new id; the count stays bounded.
	for _, id := range []string{"d", "e", "f"} {
		r.Get(id)
		tick()
		assert.Equal(t, 2, r.Len())
	}
	assert.NotSame(t, b, r.Get("b"), "evicted viewer is rebuilt")
}

func TestViewerFactory_FeeCursorNotBeforeEpoch(t *testing.T) {
	p := newFakeProvider()
	future := MonthOf(time.Now()).Add(1)
	factory := NewViewerFactory(p, attendanceRows{p}, feeRows{p}, NewSequencer(time.Now()), future, testLogger())

	v := factory("x")
	assert.Equal(t, future, v.Fees.Month())
	assert.Equal(t, MonthOf(time.Now()), v.Attendance.Month())
}
