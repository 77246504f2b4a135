package tracker

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/model"
)

// DefaultFeeEpoch is the first month fees were collected.
var DefaultFeeEpoch = NewMonth(2025, time.July)

// FeeMember is a roster entry with its fee status per month key.
type FeeMember struct {
	ID   int64
	Name string
	Fees FeeRecord
}

// FeeTotals counts members by fee status for the displayed month.
type FeeTotals struct {
	Paid   int `json:"paid"`
	Unpaid int `json:"unpaid"`
}

// FeeGrid is the fee view-model. It keeps its own roster, independent of any
// AttendanceGrid, and never shows months before its epoch.
type FeeGrid struct {
	members Members
	fees    FeeRows
	seq     *Sequencer
	epoch   Month
	logger  *slog.Logger
	flights singleflight.Group

	mu      sync.Mutex
	month   Month
	roster  []FeeMember
	loading bool
	err     string
	gen     uint64
	marks   pendingWrites[markKey, FeeStatus]
}

// NewFeeGrid starts the cursor at start, clamped to epoch.
func NewFeeGrid(members Members, fees FeeRows, seq *Sequencer, epoch, start Month, logger *slog.Logger) *FeeGrid {
	if start.Before(epoch) {
		start = epoch
	}
	return &FeeGrid{
		members: members,
		fees:    fees,
		seq:     seq,
		epoch:   epoch,
		logger:  logger,
		month:   start,
		loading: true,
		marks:   newPendingWrites[markKey, FeeStatus](),
	}
}

type feeFetch struct {
	members    []model.Member
	rows       []model.FeeRow
	membersErr error
	rowsErr    error
}

// Load fetches the roster and the displayed month's fee rows, clearing the
// error banner.
func (g *FeeGrid) Load() {
	g.load(true)
}

func (g *FeeGrid) load(clearErr bool) {
	g.mu.Lock()
	month := g.month
	g.gen++
	gen := g.gen
	g.loading = true
	if clearErr {
		g.err = ""
	}
	g.mu.Unlock()

	f := g.fetch(month)

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return
	}
	g.apply(f, month)
	g.loading = false
}

func (g *FeeGrid) fetch(month Month) feeFetch {
	v, _, _ := g.flights.Do(month.Key(), func() (any, error) {
		var f feeFetch
		f.members, f.membersErr = g.members.List()
		if f.membersErr != nil {
			return f, nil
		}
		f.rows, f.rowsErr = g.fees.ListMonth(memberIDs(f.members), month.Key())
		return f, nil
	})
	return v.(feeFetch)
}

func (g *FeeGrid) apply(f feeFetch, month Month) {
	if f.membersErr != nil {
		g.logger.Error("fetch members", "month", month.String(), "error", f.membersErr)
		g.roster = nil
		g.err = fmt.Sprintf("Failed to fetch members. Message: %v", f.membersErr)
		return
	}
	if f.rowsErr != nil {
		g.logger.Error("fetch fees", "month", month.String(), "error", f.rowsErr)
		g.err = fmt.Sprintf("Failed to fetch fee data. Message: %v", f.rowsErr)
	}

	stored := make(map[markKey]int64, len(f.rows))
	byMember := make(map[int64]FeeRecord, len(f.rows))
	for _, r := range f.rows {
		rec, ok := byMember[r.MemberID]
		if !ok {
			rec = FeeRecord{}
			byMember[r.MemberID] = rec
		}
		rec[r.Month] = ParseFeeStatus(r.Status)
		stored[markKey{r.MemberID, r.Month}] = r.Revision
	}

	roster := make([]FeeMember, len(f.members))
	for i, m := range f.members {
		rec := byMember[m.ID]
		if rec == nil {
			rec = FeeRecord{}
		}
		roster[i] = FeeMember{ID: m.ID, Name: m.Name, Fees: rec}
	}
	g.roster = roster

	for _, k := range g.marks.keys() {
		if v, ok := g.marks.overlay(k, stored[k]); ok {
			if i := g.indexOf(k.memberID); i >= 0 {
				g.roster[i].Fees[k.date] = v
			}
		}
	}
}

func (g *FeeGrid) indexOf(memberID int64) int {
	return slices.IndexFunc(g.roster, func(m FeeMember) bool { return m.ID == memberID })
}

// ChangeMonth moves the cursor by offset months. Moving before the epoch
// returns ErrBeforeEpoch and leaves the cursor where it was.
func (g *FeeGrid) ChangeMonth(offset int) error {
	g.mu.Lock()
	next := g.month.Add(offset)
	if next.Before(g.epoch) {
		g.mu.Unlock()
		return ErrBeforeEpoch
	}
	g.month = next
	g.mu.Unlock()
	g.Load()
	return nil
}

// SetMonth jumps to m and loads it, with the same epoch bound as ChangeMonth.
func (g *FeeGrid) SetMonth(m Month) error {
	g.mu.Lock()
	if m.Before(g.epoch) {
		g.mu.Unlock()
		return ErrBeforeEpoch
	}
	g.month = m
	g.mu.Unlock()
	g.Load()
	return nil
}

func (g *FeeGrid) Month() Month {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.month
}

// CanGoPrevious reports whether the previous month is on or after the epoch.
func (g *FeeGrid) CanGoPrevious() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canGoPrevious()
}

func (g *FeeGrid) canGoPrevious() bool {
	return !g.month.Add(-1).Before(g.epoch)
}

func (g *FeeGrid) Totals() FeeTotals {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totals()
}

func (g *FeeGrid) totals() FeeTotals {
	var t FeeTotals
	key := g.month.Key()
	for _, m := range g.roster {
		if FeeStatusOf(m.Fees, key) == Paid {
			t.Paid++
		} else {
			t.Unpaid++
		}
	}
	return t
}

// StatusOf returns a member's status for the displayed month.
func (g *FeeGrid) StatusOf(memberID int64) FeeStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.indexOf(memberID)
	if i < 0 {
		return Unpaid
	}
	return FeeStatusOf(g.roster[i].Fees, g.month.Key())
}

// ToggleFeeStatus flips a member between paid and unpaid for the displayed
// month.
func (g *FeeGrid) ToggleFeeStatus(cap auth.Capability, memberID int64) error {
	if !cap.IsAdmin() {
		return ErrNotAdmin
	}

	g.mu.Lock()
	i := g.indexOf(memberID)
	if i < 0 {
		g.mu.Unlock()
		return ErrUnknownMember
	}
	month := g.month.Key()
	next := FeeStatusOf(g.roster[i].Fees, month).Toggle()
	g.roster[i].Fees[month] = next
	key := markKey{memberID, month}
	rev := g.seq.Next()
	g.marks.begin(key, rev, next)
	g.mu.Unlock()

	err := g.fees.Upsert(memberID, month, string(next), rev)

	g.mu.Lock()
	if err == nil {
		g.marks.succeed(key, rev)
		g.mu.Unlock()
		return nil
	}
	latest := g.marks.fail(key, rev)
	g.err = fmt.Sprintf("Failed to save fee status. Reverting changes. Message: %v", err)
	g.mu.Unlock()

	g.logger.Error("save fee status", "member_id", memberID, "month", month, "error", err)
	if latest {
		g.load(false)
	}
	return fmt.Errorf("save fee status: %w", err)
}

// FeeView is an immutable copy of the grid for rendering.
type FeeView struct {
	Month         string          `json:"month"`
	MonthKey      string          `json:"month_key"`
	Label         string          `json:"label"`
	Epoch         string          `json:"epoch"`
	CanGoPrevious bool            `json:"can_go_previous"`
	Loading       bool            `json:"loading"`
	Error         string          `json:"error,omitempty"`
	Members       []FeeMemberView `json:"members"`
	MemberCount   int             `json:"member_count"`
	Totals        FeeTotals       `json:"totals"`
}

type FeeMemberView struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	Status FeeStatus `json:"status"`
}

func (g *FeeGrid) Snapshot() FeeView {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := g.month.Key()
	members := make([]FeeMemberView, len(g.roster))
	for i, m := range g.roster {
		members[i] = FeeMemberView{ID: m.ID, Name: m.Name, Status: FeeStatusOf(m.Fees, key)}
	}
	return FeeView{
		Month:         g.month.String(),
		MonthKey:      key,
		Label:         g.month.Label(),
		Epoch:         g.epoch.String(),
		CanGoPrevious: g.canGoPrevious(),
		Loading:       g.loading,
		Error:         g.err,
		Members:       members,
		MemberCount:   len(members),
		Totals:        g.totals(),
	}
}
