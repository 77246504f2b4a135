package tracker

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/model"
)

type markKey struct {
	memberID int64
	date     string
}

// AttendanceMember is a roster entry with its marks for the loaded month.
type AttendanceMember struct {
	ID         int64
	Name       string
	Attendance AttendanceRecord
}

// AttendanceGrid is the attendance view-model: a roster of members crossed
// with the training days of the displayed month.
//
// Writes are optimistic. Local state changes first, the remote write runs
// without holding the lock, and a failed write reloads the month from the
// data provider. Every write carries a revision from the Sequencer so late
// responses for superseded writes are ignored.
type AttendanceGrid struct {
	members    Members
	attendance AttendanceRows
	fees       FeeRows
	seq        *Sequencer
	logger     *slog.Logger
	flights    singleflight.Group

	mu      sync.Mutex
	month   Month
	roster  []AttendanceMember
	loading bool
	err     string
	gen     uint64
	// rosterGen counts local adds and deletes. A fetch that spans one may
	// predate it and is redone.
	rosterGen uint64
	marks     pendingWrites[markKey, AttendanceStatus]
	renames   pendingWrites[int64, string]
	editing   int64
	deletion  deletion
}

func NewAttendanceGrid(members Members, attendance AttendanceRows, fees FeeRows, seq *Sequencer, start Month, logger *slog.Logger) *AttendanceGrid {
	return &AttendanceGrid{
		members:    members,
		attendance: attendance,
		fees:       fees,
		seq:        seq,
		logger:     logger,
		month:      start,
		loading:    true,
		marks:      newPendingWrites[markKey, AttendanceStatus](),
		renames:    newPendingWrites[int64, string](),
	}
}

type attendanceFetch struct {
	members    []model.Member
	rows       []model.AttendanceRow
	membersErr error
	rowsErr    error
}

// Load fetches the roster and the displayed month's attendance, replacing
// local state. It clears the error banner.
func (g *AttendanceGrid) Load() {
	g.load(true)
}

// reconcile reloads after a failed write, keeping the write's error visible.
func (g *AttendanceGrid) reconcile() {
	g.load(false)
}

func (g *AttendanceGrid) load(clearErr bool) {
	g.mu.Lock()
	month := g.month
	g.gen++
	gen := g.gen
	roster := g.rosterGen
	g.loading = true
	if clearErr {
		g.err = ""
	}
	g.mu.Unlock()

	for {
		f := g.fetch(month, roster)

		g.mu.Lock()
		// A newer load or a month change superseded this one.
		if gen != g.gen {
			g.mu.Unlock()
			return
		}
		if roster == g.rosterGen {
			g.apply(f)
			g.loading = false
			g.mu.Unlock()
			return
		}
		roster = g.rosterGen
		g.mu.Unlock()
	}
}

func (g *AttendanceGrid) fetch(month Month, roster uint64) attendanceFetch {
	key := fmt.Sprintf("%s#%d", month.Key(), roster)
	v, _, _ := g.flights.Do(key, func() (any, error) {
		var f attendanceFetch
		f.members, f.membersErr = g.members.List()
		if f.membersErr != nil {
			return f, nil
		}
		f.rows, f.rowsErr = g.attendance.ListRange(memberIDs(f.members), month.FirstDay(), month.LastDay())
		return f, nil
	})
	return v.(attendanceFetch)
}

func (g *AttendanceGrid) apply(f attendanceFetch) {
	if f.membersErr != nil {
		g.logger.Error("fetch members", "month", g.month.String(), "error", f.membersErr)
		g.roster = nil
		g.err = fmt.Sprintf("Failed to fetch members. This could be a network issue or a problem with database permissions. Message: %v", f.membersErr)
		return
	}
	if f.rowsErr != nil {
		g.logger.Error("fetch attendance", "month", g.month.String(), "error", f.rowsErr)
		g.err = fmt.Sprintf("Failed to fetch attendance data. Message: %v", f.rowsErr)
	}

	stored := make(map[markKey]int64, len(f.rows))
	byMember := make(map[int64]AttendanceRecord, len(f.members))
	for _, r := range f.rows {
		rec, ok := byMember[r.MemberID]
		if !ok {
			rec = AttendanceRecord{}
			byMember[r.MemberID] = rec
		}
		rec[r.Date] = ParseAttendanceStatus(r.Status)
		stored[markKey{r.MemberID, r.Date}] = r.Revision
	}

	roster := make([]AttendanceMember, len(f.members))
	for i, m := range f.members {
		rec := byMember[m.ID]
		if rec == nil {
			rec = AttendanceRecord{}
		}
		roster[i] = AttendanceMember{ID: m.ID, Name: m.Name, Attendance: rec}
	}
	g.roster = roster

	// Re-apply writes the snapshot does not reflect yet.
	for _, k := range g.marks.keys() {
		if v, ok := g.marks.overlay(k, stored[k]); ok {
			if i := g.indexOf(k.memberID); i >= 0 {
				g.roster[i].Attendance[k.date] = v
			}
		}
	}
	for _, id := range g.renames.keys() {
		if name, ok := g.renames.overlay(id, math.MaxInt64); ok {
			if i := g.indexOf(id); i >= 0 {
				g.roster[i].Name = name
			}
		}
	}
}

func (g *AttendanceGrid) indexOf(memberID int64) int {
	return slices.IndexFunc(g.roster, func(m AttendanceMember) bool { return m.ID == memberID })
}

// ChangeMonth moves the cursor by offset months and loads the new month.
// Attendance navigation is unbounded.
func (g *AttendanceGrid) ChangeMonth(offset int) {
	g.mu.Lock()
	g.month = g.month.Add(offset)
	g.mu.Unlock()
	g.Load()
}

// SetMonth jumps to m and loads it.
func (g *AttendanceGrid) SetMonth(m Month) {
	g.mu.Lock()
	g.month = m
	g.mu.Unlock()
	g.Load()
}

func (g *AttendanceGrid) Month() Month {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.month
}

// Dates lists the displayed month's training days as YYYY-MM-DD.
func (g *AttendanceGrid) Dates() []string {
	return dateKeys(g.Month())
}

func dateKeys(m Month) []string {
	days := Thursdays(m)
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = DateKey(d)
	}
	return keys
}

// Totals counts, per visible date, the members marked Present.
func (g *AttendanceGrid) Totals() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totals(dateKeys(g.month))
}

func (g *AttendanceGrid) totals(dates []string) []int {
	totals := make([]int, len(dates))
	for i, d := range dates {
		for _, m := range g.roster {
			if AttendanceStatusOf(m.Attendance, d) == Present {
				totals[i]++
			}
		}
	}
	return totals
}

// StatusOf returns a member's status on date; unknown members are Pending.
func (g *AttendanceGrid) StatusOf(memberID int64, date string) AttendanceStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.indexOf(memberID)
	if i < 0 {
		return Pending
	}
	return AttendanceStatusOf(g.roster[i].Attendance, date)
}

// ToggleAttendance flips a member between Present and Pending on date.
func (g *AttendanceGrid) ToggleAttendance(cap auth.Capability, memberID int64, date string) error {
	if !cap.IsAdmin() {
		return ErrNotAdmin
	}
	if !validDate(date) {
		return ErrInvalidDate
	}

	g.mu.Lock()
	i := g.indexOf(memberID)
	if i < 0 {
		g.mu.Unlock()
		return ErrUnknownMember
	}
	next := AttendanceStatusOf(g.roster[i].Attendance, date).Toggle()
	g.roster[i].Attendance[date] = next
	key := markKey{memberID, date}
	rev := g.seq.Next()
	g.marks.begin(key, rev, next)
	g.mu.Unlock()

	err := g.attendance.Upsert(memberID, date, string(next), rev)

	g.mu.Lock()
	if err == nil {
		g.marks.succeed(key, rev)
		g.mu.Unlock()
		return nil
	}
	latest := g.marks.fail(key, rev)
	g.err = fmt.Sprintf("Failed to save attendance. Reverting changes. Message: %v", err)
	g.mu.Unlock()

	g.logger.Error("save attendance", "member_id", memberID, "date", date, "error", err)
	if latest {
		g.reconcile()
	}
	return fmt.Errorf("save attendance: %w", err)
}

// AddMember creates a member remotely and, once the server has assigned an
// id, inserts it into the roster in id order. It is not optimistic.
func (g *AttendanceGrid) AddMember(cap auth.Capability, name string) (*model.Member, error) {
	if !cap.IsAdmin() {
		return nil, ErrNotAdmin
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBlankName
	}

	m, err := g.members.Create(name)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.logger.Error("add member", "error", err)
		g.err = fmt.Sprintf("Failed to add member. Message: %v", err)
		return nil, fmt.Errorf("add member: %w", err)
	}
	// A load that finished meanwhile may already list the member.
	if g.indexOf(m.ID) < 0 {
		pos, _ := slices.BinarySearchFunc(g.roster, m.ID, func(e AttendanceMember, id int64) int {
			switch {
			case e.ID < id:
				return -1
			case e.ID > id:
				return 1
			}
			return 0
		})
		g.roster = slices.Insert(g.roster, pos, AttendanceMember{ID: m.ID, Name: m.Name, Attendance: AttendanceRecord{}})
	}
	g.rosterGen++
	return m, nil
}

// StartEdit marks a member as being renamed.
func (g *AttendanceGrid) StartEdit(cap auth.Capability, memberID int64) error {
	if !cap.IsAdmin() {
		return ErrNotAdmin
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.indexOf(memberID) < 0 {
		return ErrUnknownMember
	}
	g.editing = memberID
	return nil
}

func (g *AttendanceGrid) CancelEdit() {
	g.mu.Lock()
	g.editing = 0
	g.mu.Unlock()
}

// RenameMember renames optimistically and reloads if the update fails.
func (g *AttendanceGrid) RenameMember(cap auth.Capability, memberID int64, newName string) error {
	if !cap.IsAdmin() {
		return ErrNotAdmin
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrBlankName
	}

	g.mu.Lock()
	i := g.indexOf(memberID)
	if i < 0 {
		g.mu.Unlock()
		return ErrUnknownMember
	}
	g.roster[i].Name = newName
	if g.editing == memberID {
		g.editing = 0
	}
	rev := g.seq.Next()
	g.renames.begin(memberID, rev, newName)
	g.mu.Unlock()

	err := g.members.Rename(memberID, newName)

	g.mu.Lock()
	if err == nil {
		g.renames.succeed(memberID, rev)
		g.mu.Unlock()
		return nil
	}
	latest := g.renames.fail(memberID, rev)
	g.err = fmt.Sprintf("Failed to update name. Reverting. Message: %v", err)
	g.mu.Unlock()

	g.logger.Error("rename member", "member_id", memberID, "error", err)
	if latest {
		g.reconcile()
	}
	return fmt.Errorf("rename member: %w", err)
}

// RequestDelete stages a member for deletion. Nothing changes until
// ConfirmDelete.
func (g *AttendanceGrid) RequestDelete(cap auth.Capability, memberID int64) error {
	if !cap.IsAdmin() {
		return ErrNotAdmin
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.indexOf(memberID) < 0 {
		return ErrUnknownMember
	}
	return g.deletion.request(memberID)
}

// CancelDelete abandons a staged deletion.
func (g *AttendanceGrid) CancelDelete() {
	g.mu.Lock()
	g.deletion.cancel()
	g.mu.Unlock()
}

// ConfirmDelete deletes the staged member's attendance rows, then its fee
// rows, then the member row, stopping at the first failure. The member leaves
// the roster only when all three succeed. It returns the staged member's id.
func (g *AttendanceGrid) ConfirmDelete(cap auth.Capability) (int64, error) {
	if !cap.IsAdmin() {
		return 0, ErrNotAdmin
	}
	g.mu.Lock()
	memberID, err := g.deletion.confirm()
	g.mu.Unlock()
	if err != nil {
		return 0, err
	}

	err = g.deleteMember(memberID)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletion.finish()
	if err != nil {
		g.logger.Error("delete member", "member_id", memberID, "error", err)
		g.err = fmt.Sprintf("Failed to delete member. Message: %v", err)
		return memberID, err
	}
	if i := g.indexOf(memberID); i >= 0 {
		g.roster = slices.Delete(g.roster, i, i+1)
	}
	g.rosterGen++
	g.marks.dropWhere(func(k markKey) bool { return k.memberID == memberID })
	g.renames.dropWhere(func(id int64) bool { return id == memberID })
	if g.editing == memberID {
		g.editing = 0
	}
	return memberID, nil
}

func (g *AttendanceGrid) deleteMember(memberID int64) error {
	if err := g.attendance.DeleteByMember(memberID); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if err := g.fees.DeleteByMember(memberID); err != nil {
		return fmt.Errorf("delete fees: %w", err)
	}
	if err := g.members.Delete(memberID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// AttendanceView is an immutable copy of the grid for rendering.
type AttendanceView struct {
	Month           string                 `json:"month"`
	Label           string                 `json:"label"`
	Loading         bool                   `json:"loading"`
	Error           string                 `json:"error,omitempty"`
	Dates           []string               `json:"dates"`
	Totals          []int                  `json:"totals"`
	Members         []AttendanceMemberView `json:"members"`
	MemberCount     int                    `json:"member_count"`
	EditingID       int64                  `json:"editing_id,omitempty"`
	PendingDeleteID int64                  `json:"pending_delete_id,omitempty"`
	DeletePhase     string                 `json:"delete_phase"`
}

type AttendanceMemberView struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Attendance AttendanceRecord `json:"attendance"`
}

// Snapshot copies the current state. Every visible date appears in each
// member's attendance, defaulted to Pending.
func (g *AttendanceGrid) Snapshot() AttendanceView {
	g.mu.Lock()
	defer g.mu.Unlock()

	dates := dateKeys(g.month)
	members := make([]AttendanceMemberView, len(g.roster))
	for i, m := range g.roster {
		rec := make(AttendanceRecord, len(dates))
		for _, d := range dates {
			rec[d] = AttendanceStatusOf(m.Attendance, d)
		}
		members[i] = AttendanceMemberView{ID: m.ID, Name: m.Name, Attendance: rec}
	}

	return AttendanceView{
		Month:           g.month.String(),
		Label:           g.month.Label(),
		Loading:         g.loading,
		Error:           g.err,
		Dates:           dates,
		Totals:          g.totals(dates),
		Members:         members,
		MemberCount:     len(members),
		EditingID:       g.editing,
		PendingDeleteID: g.deletion.memberID,
		DeletePhase:     g.deletion.phase.String(),
	}
}
