package tracker

type AttendanceStatus string

const (
	Present AttendanceStatus = "Present"
	Pending AttendanceStatus = "Pending"
)

// ParseAttendanceStatus treats anything other than Present as Pending.
func ParseAttendanceStatus(s string) AttendanceStatus {
	if AttendanceStatus(s) == Present {
		return Present
	}
	return Pending
}

func (s AttendanceStatus) Toggle() AttendanceStatus {
	if s == Present {
		return Pending
	}
	return Present
}

type FeeStatus string

const (
	Paid   FeeStatus = "paid"
	Unpaid FeeStatus = "unpaid"
)

// ParseFeeStatus treats anything other than paid as unpaid.
func ParseFeeStatus(s string) FeeStatus {
	if FeeStatus(s) == Paid {
		return Paid
	}
	return Unpaid
}

func (s FeeStatus) Toggle() FeeStatus {
	if s == Paid {
		return Unpaid
	}
	return Paid
}

// AttendanceRecord maps a date (YYYY-MM-DD) to a member's status.
type AttendanceRecord map[string]AttendanceStatus

// FeeRecord maps a month key (YYYY-MM-01) to a member's status.
type FeeRecord map[string]FeeStatus

// AttendanceStatusOf is total: a missing date is Pending.
func AttendanceStatusOf(r AttendanceRecord, date string) AttendanceStatus {
	return ParseAttendanceStatus(string(r[date]))
}

// FeeStatusOf is total: a missing month is Unpaid.
func FeeStatusOf(r FeeRecord, month string) FeeStatus {
	return ParseFeeStatus(string(r[month]))
}
