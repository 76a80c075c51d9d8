package inspection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrRowIndex      = errors.New("row index out of range")
	ErrUnknownAction = errors.New("unknown row action")
	ErrIncomplete    = errors.New("every row must be inspected or postponed before saving")
	ErrEmptyWorklist = errors.New("no rows to inspect")
)

// Status is the disposition of a worklist row. A row holds exactly one.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInspected Status = "inspected"
	StatusPostponed Status = "postponed"
)

// Row is one received inventory line awaiting an inspection disposition.
type Row struct {
	EntryDate     string          `json:"entry_date"`
	Notice        int             `json:"notice"`
	Item          string          `json:"item"`
	Description   string          `json:"description"`
	QtyReceived   decimal.Decimal `json:"qty_received"`
	Supplier      string          `json:"supplier"`
	PurchaseOrder int             `json:"purchase_order"`
	Status        Status          `json:"status"`
}

func (r Row) Inspected() bool { return r.Status == StatusInspected }
func (r Row) Postponed() bool { return r.Status == StatusPostponed }

// Flags returns the two indicators rendered on the row's status cell.
func (r Row) Flags() Flags {
	return Flags{Inspected: r.Inspected(), Postponed: r.Postponed()}
}

// Action is a row-scoped form action.
type Action string

const (
	ActionInspect  Action = "inspect"
	ActionPostpone Action = "postpone"
)

// ParseAction validates the action tag submitted by a row form.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionInspect, ActionPostpone:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Status is the disposition a row takes after the action. Inspecting clears
// a postponement and vice versa.
func (a Action) Status() Status {
	if a == ActionInspect {
		return StatusInspected
	}
	return StatusPostponed
}

// IndexedRow pairs a row with its zero-based position in the worklist.
type IndexedRow struct {
	Index int
	Row
}

// Group is the set of rows sharing one receiving notice.
type Group struct {
	Notice int
	Rows   []IndexedRow
}

// GroupByNotice groups rows by notice number in ascending notice order,
// keeping worklist order inside each group.
func GroupByNotice(rows []Row) []Group {
	byNotice := make(map[int]*Group)
	var notices []int
	for i, r := range rows {
		g, ok := byNotice[r.Notice]
		if !ok {
			g = &Group{Notice: r.Notice}
			byNotice[r.Notice] = g
			notices = append(notices, r.Notice)
		}
		g.Rows = append(g.Rows, IndexedRow{Index: i, Row: r})
	}
	sort.Ints(notices)

	groups := make([]Group, 0, len(notices))
	for _, n := range notices {
		groups = append(groups, *byNotice[n])
	}
	return groups
}

// Routine is a saved inspection session.
type Routine struct {
	ID          string `json:"id"`
	InspectorID int    `json:"inspector_id"`
	Inspector   string `json:"inspector"`
	InspectedAt string `json:"inspected_at"`
	Rows        []Row  `json:"rows"`
}

// Counts returns how many rows were inspected and postponed.
func (r Routine) Counts() (inspected, postponed int) {
	for _, row := range r.Rows {
		switch row.Status {
		case StatusInspected:
			inspected++
		case StatusPostponed:
			postponed++
		}
	}
	return inspected, postponed
}
