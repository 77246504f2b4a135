package tracker

import "github.com/dukerupert/ondo/internal/model"

// MemberLister reads the roster ordered by id.
type MemberLister interface {
	List() ([]model.Member, error)
}

// Members is the members table of the data provider.
type Members interface {
	MemberLister
	Create(name string) (*model.Member, error)
	Rename(id int64, name string) error
	Delete(id int64) error
}

// AttendanceRows is the attendance table, upserted on (member_id, date).
type AttendanceRows interface {
	ListRange(memberIDs []int64, from, to string) ([]model.AttendanceRow, error)
	Upsert(memberID int64, date, status string, revision int64) error
	DeleteByMember(memberID int64) error
}

// FeeRows is the fees table, upserted on (member_id, month).
type FeeRows interface {
	ListMonth(memberIDs []int64, month string) ([]model.FeeRow, error)
	Upsert(memberID int64, month, status string, revision int64) error
	DeleteByMember(memberID int64) error
}

func memberIDs(members []model.Member) []int64 {
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}
