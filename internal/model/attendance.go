package model

// AttendanceRow is one stored attendance mark. Date is YYYY-MM-DD.
type AttendanceRow struct {
	MemberID int64  `json:"member_id"`
	Date     string `json:"date"`
	Status   string `json:"status"`
	Revision int64  `json:"revision"`
}

// FeeRow is one stored fee status. Month is YYYY-MM-01.
type FeeRow struct {
	MemberID int64  `json:"member_id"`
	Month    string `json:"month"`
	Status   string `json:"status"`
	Revision int64  `json:"revision"`
}
