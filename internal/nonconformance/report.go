// Package nonconformance records defective deliveries (INCs) found during
// receiving inspection.
package nonconformance

import (
	"slices"
	"sort"
	"strings"
	"time"

	"incmgr/internal/datefmt"
	"incmgr/internal/validation"
)

// Urgency drives how long an INC may stay open.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyCritical Urgency = "critical"
)

// Urgencies lists the accepted urgency values.
var Urgencies = []string{string(UrgencyLow), string(UrgencyModerate), string(UrgencyCritical)}

// Days is the time allowed before an INC of this urgency is overdue.
func (u Urgency) Days() int {
	switch u {
	case UrgencyModerate:
		return 20
	case UrgencyCritical:
		return 10
	default:
		return 45
	}
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists the accepted status values.
var Statuses = []string{string(StatusInProgress), string(StatusCompleted), string(StatusCancelled)}

// Report is one INC.
type Report struct {
	ID                int
	OC                int
	Notice            int
	Date              string // YYYY-MM-DD
	Representative    string
	Supplier          string
	Item              string
	QtyReceived       int
	QtyDefective      int
	DefectDescription string
	Urgency           Urgency
	RecommendedAction string
	Photos            []string
	Status            Status
	CreatedBy         string
	CreatedAt         string
}

// Normalize trims text fields, upper-cases the item and fills defaults.
func (r *Report) Normalize() {
	r.Representative = strings.TrimSpace(r.Representative)
	r.Supplier = strings.TrimSpace(r.Supplier)
	r.Item = strings.ToUpper(strings.TrimSpace(r.Item))
	r.DefectDescription = strings.TrimSpace(r.DefectDescription)
	r.RecommendedAction = strings.TrimSpace(r.RecommendedAction)
	if r.Urgency == "" {
		r.Urgency = UrgencyModerate
	}
	if r.Status == "" {
		r.Status = StatusInProgress
	}
	if r.Photos == nil {
		r.Photos = []string{}
	}
}

// Validate checks r. When representatives is non-empty the representative
// must be one of them.
func (r Report) Validate(representatives []string) error {
	ve := &validation.ValidationErrors{}
	if r.Notice <= 0 {
		ve.Add("notice", "must be a positive number")
	}
	validation.RequireField(ve, "representative", r.Representative)
	if r.Representative != "" && len(representatives) > 0 && !slices.Contains(representatives, r.Representative) {
		ve.Add("representative", "is not a known representative")
	}
	validation.RequireField(ve, "supplier", r.Supplier)
	validation.ValidateMaxLength(ve, "supplier", r.Supplier, 100)
	if !validation.ValidItemCode(r.Item) {
		ve.Add("item", "must be 3 capital letters, a dot and 5 digits, e.g. MPR.02199")
	}
	if r.QtyReceived < 0 {
		ve.Add("qty_received", "must not be negative")
	}
	if r.QtyDefective < 0 {
		ve.Add("qty_defective", "must not be negative")
	}
	if r.QtyDefective > r.QtyReceived {
		ve.Add("qty_defective", "cannot exceed the quantity received")
	}
	validation.ValidateMaxLength(ve, "defect_description", r.DefectDescription, 2000)
	validation.ValidateMaxLength(ve, "recommended_action", r.RecommendedAction, 2000)
	validation.ValidateEnum(ve, "urgency", string(r.Urgency), Urgencies)
	validation.ValidateEnum(ve, "status", string(r.Status), Statuses)
	if r.Date != "" {
		if _, ok := parseDate(r.Date); !ok {
			ve.Add("date", "is not a date")
		}
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func parseDate(s string) (time.Time, bool) {
	return datefmt.Parse(strings.TrimSpace(s))
}

// DisplayDate is the INC date in the day-first layout.
func (r Report) DisplayDate() string {
	return datefmt.Display(r.Date)
}

// DueDate is the date after which an open INC is overdue.
func (r Report) DueDate() (time.Time, bool) {
	d, ok := parseDate(r.Date)
	if !ok {
		return time.Time{}, false
	}
	return d.AddDate(0, 0, r.Urgency.Days()), true
}

// Overdue is an open INC past its due date.
type Overdue struct {
	Report
	DaysOverdue int
}

// OverdueReports returns the in-progress reports whose due date is before
// today, most overdue first.
func OverdueReports(reports []Report, today time.Time) []Overdue {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	var out []Overdue
	for _, r := range reports {
		if r.Status != StatusInProgress {
			continue
		}
		due, ok := r.DueDate()
		if !ok || !day.After(due) {
			continue
		}
		out = append(out, Overdue{Report: r, DaysOverdue: int(day.Sub(due).Hours() / 24)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysOverdue > out[j].DaysOverdue })
	return out
}

// MonthCount is the number of INCs dated in one month.
type MonthCount struct {
	Month string // MM-YYYY
	Count int
}

// MonthlyCounts groups reports by month, in calendar order.
func MonthlyCounts(reports []Report) []MonthCount {
	counts := map[string]int{}
	for _, r := range reports {
		d, ok := parseDate(r.Date)
		if !ok {
			continue
		}
		counts[d.Format("2006-01")]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]MonthCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthCount{Month: k[5:] + "-" + k[:4], Count: counts[k]})
	}
	return out
}

// MaxCount is the largest count in months, or 0.
func MaxCount(months []MonthCount) int {
	max := 0
	for _, m := range months {
		if m.Count > max {
			max = m.Count
		}
	}
	return max
}
