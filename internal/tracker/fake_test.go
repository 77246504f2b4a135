package tracker

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/ondo/internal/model"
)

var errRemote = errors.New("remote unavailable")

type rowKey struct {
	memberID int64
	at       string
}

type storedRow struct {
	status   string
	revision int64
}

// fakeProvider is an in-memory data provider. Failure fields make the named
// operation return errRemote; hooks run before an operation touches state,
// which lets tests hold a call in flight.
type fakeProvider struct {
	mu         sync.Mutex
	nextID     int64
	members    []model.Member
	attendance map[rowKey]storedRow
	fees       map[rowKey]storedRow
	calls      []string

	failList            bool
	failListAttendance  bool
	failListFees        bool
	failCreate          bool
	failRename          bool
	failUpsert          bool
	failDeleteAttend    bool
	failDeleteFees      bool
	failDeleteMember    bool
	beforeUpsert        func(memberID int64, at, status string, revision int64) error
	beforeAttendanceGet func()
}

func newFakeProvider(names ...string) *fakeProvider {
	p := &fakeProvider{
		attendance: make(map[rowKey]storedRow),
		fees:       make(map[rowKey]storedRow),
	}
	for _, n := range names {
		p.nextID++
		p.members = append(p.members, model.Member{ID: p.nextID, Name: n})
	}
	return p
}

func (p *fakeProvider) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakeProvider) List() ([]model.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("members.list")
	if p.failList {
		return nil, errRemote
	}
	return slices.Clone(p.members), nil
}

func (p *fakeProvider) Create(name string) (*model.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("members.create")
	if p.failCreate {
		return nil, errRemote
	}
	p.nextID++
	m := model.Member{ID: p.nextID, Name: name, CreatedAt: time.Now()}
	p.members = append(p.members, m)
	return &m, nil
}

func (p *fakeProvider) Rename(id int64, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("members.rename")
	if p.failRename {
		return errRemote
	}
	for i := range p.members {
		if p.members[i].ID == id {
			p.members[i].Name = name
			return nil
		}
	}
	return errors.New("not found")
}

func (p *fakeProvider) Delete(id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("members.delete")
	if p.failDeleteMember {
		return errRemote
	}
	p.members = slices.DeleteFunc(p.members, func(m model.Member) bool { return m.ID == id })
	return nil
}

// attendanceRows adapts the fake to AttendanceRows.
type attendanceRows struct{ *fakeProvider }

func (a attendanceRows) ListRange(ids []int64, from, to string) ([]model.AttendanceRow, error) {
	if a.beforeAttendanceGet != nil {
		a.beforeAttendanceGet()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("attendance.list")
	if a.failListAttendance {
		return nil, errRemote
	}
	var rows []model.AttendanceRow
	for k, r := range a.attendance {
		if slices.Contains(ids, k.memberID) && k.at >= from && k.at <= to {
			rows = append(rows, model.AttendanceRow{MemberID: k.memberID, Date: k.at, Status: r.status, Revision: r.revision})
		}
	}
	return rows, nil
}

func (a attendanceRows) Upsert(memberID int64, date, status string, revision int64) error {
	if a.beforeUpsert != nil {
		if err := a.beforeUpsert(memberID, date, status, revision); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("attendance.upsert")
	if a.failUpsert {
		return errRemote
	}
	upsert(a.attendance, rowKey{memberID, date}, status, revision)
	return nil
}

func (a attendanceRows) DeleteByMember(memberID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("attendance.delete")
	if a.failDeleteAttend {
		return errRemote
	}
	deleteMember(a.attendance, memberID)
	return nil
}

// feeRows adapts the fake to FeeRows.
type feeRows struct{ *fakeProvider }

func (f feeRows) ListMonth(ids []int64, month string) ([]model.FeeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("fees.list")
	if f.failListFees {
		return nil, errRemote
	}
	var rows []model.FeeRow
	for k, r := range f.fees {
		if slices.Contains(ids, k.memberID) && k.at == month {
			rows = append(rows, model.FeeRow{MemberID: k.memberID, Month: k.at, Status: r.status, Revision: r.revision})
		}
	}
	return rows, nil
}

func (f feeRows) Upsert(memberID int64, month, status string, revision int64) error {
	if f.beforeUpsert != nil {
		if err := f.beforeUpsert(memberID, month, status, revision); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("fees.upsert")
	if f.failUpsert {
		return errRemote
	}
	upsert(f.fees, rowKey{memberID, month}, status, revision)
	return nil
}

func (f feeRows) DeleteByMember(memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("fees.delete")
	if f.failDeleteFees {
		return errRemote
	}
	deleteMember(f.fees, memberID)
	return nil
}

// upsert applies the same revision guard as the SQLite store.
func upsert(rows map[rowKey]storedRow, k rowKey, status string, revision int64) {
	if cur, ok := rows[k]; ok && cur.revision >= revision {
		return
	}
	rows[k] = storedRow{status: status, revision: revision}
}

func deleteMember(rows map[rowKey]storedRow, memberID int64) {
	for k := range rows {
		if k.memberID == memberID {
			delete(rows, k)
		}
	}
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakeProvider) attendanceStatus(memberID int64, date string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.attendance[rowKey{memberID, date}]
	return r.status, ok
}

func (p *fakeProvider) feeStatus(memberID int64, month string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.fees[rowKey{memberID, month}]
	return r.status, ok
}

func (p *fakeProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAttendanceGrid(p *fakeProvider, m Month) *AttendanceGrid {
	return NewAttendanceGrid(p, attendanceRows{p}, feeRows{p}, NewSequencer(time.Unix(0, 0)), m, testLogger())
}

func newTestFeeGrid(p *fakeProvider, m Month) *FeeGrid {
	return NewFeeGrid(p, feeRows{p}, NewSequencer(time.Unix(0, 0)), DefaultFeeEpoch, m, testLogger())
}
