package tracker

import "errors"

var (
	ErrNotAdmin        = errors.New("admin capability required")
	ErrUnknownMember   = errors.New("unknown member")
	ErrBlankName       = errors.New("name is required")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrBeforeEpoch     = errors.New("month is before the first fee month")
	ErrNoPendingDelete = errors.New("no member is awaiting delete confirmation")
	ErrDeleteInFlight  = errors.New("a member delete is already in progress")
)
