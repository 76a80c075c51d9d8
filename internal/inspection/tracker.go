package inspection

import "errors"

// ErrNoSaveControl is reported when a page has no save control to update.
var ErrNoSaveControl = errors.New("save control not present")

// Flags are the two booleans a status cell exposes.
type Flags struct {
	Inspected bool
	Postponed bool
}

// Processed reports whether the row has been dispositioned either way.
func (f Flags) Processed() bool {
	return f.Inspected || f.Postponed
}

// ParseFlag reads a status-cell attribute. Only the literal "true" is true.
func ParseFlag(s string) bool {
	return s == "true"
}

// AllProcessed is the AND of Processed over every row. An empty set is
// processed.
func AllProcessed(flags []Flags) bool {
	for _, f := range flags {
		if !f.Processed() {
			return false
		}
	}
	return true
}

// RowFlags projects rows onto their status-cell flags.
func RowFlags(rows []Row) []Flags {
	flags := make([]Flags, len(rows))
	for i, r := range rows {
		flags[i] = r.Flags()
	}
	return flags
}

// SaveControl is the UI element gated by AllProcessed.
type SaveControl interface {
	SetEnabled(enabled bool)
}

// SyncSaveControl recomputes the gate from scratch and applies it. A nil
// control is reported as ErrNoSaveControl so the caller can log it; it is
// never fatal.
func SyncSaveControl(ctrl SaveControl, flags []Flags) (bool, error) {
	ok := AllProcessed(flags)
	if ctrl == nil {
		return ok, ErrNoSaveControl
	}
	ctrl.SetEnabled(ok)
	return ok, nil
}
