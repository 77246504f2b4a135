package tracker

type deletePhase int

const (
	deleteIdle deletePhase = iota
	deleteAwaiting
	deleteRunning
)

func (p deletePhase) String() string {
	switch p {
	case deleteAwaiting:
		return "awaiting_confirmation"
	case deleteRunning:
		return "deleting"
	default:
		return "idle"
	}
}

// deletion is the two-step delete flow:
// idle -> awaiting(id) -> deleting -> idle. Cancel returns to idle from
// awaiting. Callers hold the grid lock.
type deletion struct {
	phase    deletePhase
	memberID int64
}

func (d *deletion) request(memberID int64) error {
	if d.phase == deleteRunning {
		return ErrDeleteInFlight
	}
	d.phase = deleteAwaiting
	d.memberID = memberID
	return nil
}

func (d *deletion) cancel() {
	if d.phase == deleteAwaiting {
		*d = deletion{}
	}
}

func (d *deletion) confirm() (int64, error) {
	switch d.phase {
	case deleteAwaiting:
		d.phase = deleteRunning
		return d.memberID, nil
	case deleteRunning:
		return 0, ErrDeleteInFlight
	default:
		return 0, ErrNoPendingDelete
	}
}

func (d *deletion) finish() {
	*d = deletion{}
}
