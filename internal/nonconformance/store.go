package nonconformance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("INC not found")

// Filter narrows a listing. Item and Supplier match substrings unless
// SupplierExact is set. From and To bound the INC date inclusively.
type Filter struct {
	Notice        int
	Item          string
	Supplier      string
	SupplierExact bool
	Status        Status
	From          string
	To            string
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Notice > 0 {
		conds = append(conds, "notice = ?")
		args = append(args, f.Notice)
	}
	if f.Item != "" {
		conds = append(conds, `item LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToUpper(f.Item))+"%")
	}
	if f.Supplier != "" {
		if f.SupplierExact {
			conds = append(conds, "supplier = ?")
			args = append(args, f.Supplier)
		} else {
			conds = append(conds, `supplier LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(f.Supplier)+"%")
		}
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.From != "" {
		conds = append(conds, "inc_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conds = append(conds, "inc_date <= ?")
		args = append(args, f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// Page is one page of a listing.
type Page struct {
	Reports []Report
	Total   int
	Page    int
	Pages   int
}

// Store persists INCs.
type Store struct {
	DB *sql.DB
}

const columns = `id, oc, notice, inc_date, representative, supplier, item, qty_received, qty_defective,
	defect_description, urgency, recommended_action, photos_json, status, created_by, created_at`

func scan(sc interface{ Scan(...any) error }) (Report, error) {
	var r Report
	var photos, urgency, status string
	err := sc.Scan(&r.ID, &r.OC, &r.Notice, &r.Date, &r.Representative, &r.Supplier, &r.Item,
		&r.QtyReceived, &r.QtyDefective, &r.DefectDescription, &urgency, &r.RecommendedAction,
		&photos, &status, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.Urgency = Urgency(urgency)
	r.Status = Status(status)
	if err := json.Unmarshal([]byte(photos), &r.Photos); err != nil {
		return r, fmt.Errorf("decode photos of INC %d: %w", r.ID, err)
	}
	return r, nil
}

func encodePhotos(photos []string) string {
	if photos == nil {
		photos = []string{}
	}
	b, _ := json.Marshal(photos)
	return string(b)
}

// Create validates r, assigns the next OC number and inserts it. A blank
// date means today.
func (s *Store) Create(ctx context.Context, r Report, representatives []string) (Report, error) {
	r.Normalize()
	if r.Date == "" {
		r.Date = time.Now().UTC().Format("2006-01-02")
	}
	if err := r.Validate(representatives); err != nil {
		return r, err
	}
	r.Date = isoDate(r.Date)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return r, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(oc), 0) + 1 FROM nonconformance_reports").Scan(&r.OC); err != nil {
		return r, fmt.Errorf("next OC: %w", err)
	}
	r.CreatedAt = time.Now().UTC().Format("2006-01-02 15:04:05")
	res, err := tx.ExecContext(ctx, `INSERT INTO nonconformance_reports
		(oc, notice, inc_date, representative, supplier, item, qty_received, qty_defective,
		 defect_description, urgency, recommended_action, photos_json, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OC, r.Notice, r.Date, r.Representative, r.Supplier, r.Item, r.QtyReceived, r.QtyDefective,
		r.DefectDescription, string(r.Urgency), r.RecommendedAction, encodePhotos(r.Photos), string(r.Status),
		r.CreatedBy, r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("insert INC: %w", err)
	}
	id, _ := res.LastInsertId()
	r.ID = int(id)
	return r, tx.Commit()
}

// Get loads one INC.
func (s *Store) Get(ctx context.Context, id int) (Report, error) {
	r, err := scan(s.DB.QueryRowContext(ctx, "SELECT "+columns+" FROM nonconformance_reports WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	return r, err
}

// Update validates r and overwrites the stored INC with the same ID. The OC
// number and creation fields never change.
func (s *Store) Update(ctx context.Context, r Report, representatives []string) error {
	r.Normalize()
	if r.Date == "" {
		r.Date = time.Now().UTC().Format("2006-01-02")
	}
	if err := r.Validate(representatives); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE nonconformance_reports SET
		notice = ?, inc_date = ?, representative = ?, supplier = ?, item = ?, qty_received = ?, qty_defective = ?,
		defect_description = ?, urgency = ?, recommended_action = ?, photos_json = ?, status = ?
		WHERE id = ?`,
		r.Notice, isoDate(r.Date), r.Representative, r.Supplier, r.Item, r.QtyReceived, r.QtyDefective,
		r.DefectDescription, string(r.Urgency), r.RecommendedAction, encodePhotos(r.Photos), string(r.Status), r.ID)
	if err != nil {
		return fmt.Errorf("update INC %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPhotos replaces the photo list of an INC.
func (s *Store) SetPhotos(ctx context.Context, id int, photos []string) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE nonconformance_reports SET photos_json = ? WHERE id = ?", encodePhotos(photos), id)
	if err != nil {
		return fmt.Errorf("update photos of INC %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an INC and returns what was removed so the caller can drop
// its photos.
func (s *Store) Delete(ctx context.Context, id int) (Report, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return r, err
	}
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM nonconformance_reports WHERE id = ?", id); err != nil {
		return r, fmt.Errorf("delete INC %d: %w", id, err)
	}
	return r, nil
}

// List returns one page of matching INCs, newest first. Pages count from 1.
func (s *Store) List(ctx context.Context, f Filter, page, perPage int) (Page, error) {
	if perPage <= 0 {
		perPage = 20
	}
	where, args := f.where()
	var p Page
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM nonconformance_reports"+where, args...).Scan(&p.Total); err != nil {
		return p, fmt.Errorf("count INCs: %w", err)
	}
	p.Pages = (p.Total + perPage - 1) / perPage
	if p.Pages == 0 {
		p.Pages = 1
	}
	p.Page = min(max(page, 1), p.Pages)

	q := "SELECT " + columns + " FROM nonconformance_reports" + where + " ORDER BY inc_date DESC, oc DESC LIMIT ? OFFSET ?"
	reports, err := s.query(ctx, q, append(args, perPage, (p.Page-1)*perPage)...)
	if err != nil {
		return p, err
	}
	p.Reports = reports
	return p, nil
}

// All returns every matching INC ordered by date.
func (s *Store) All(ctx context.Context, f Filter) ([]Report, error) {
	where, args := f.where()
	return s.query(ctx, "SELECT "+columns+" FROM nonconformance_reports"+where+" ORDER BY inc_date, oc", args...)
}

// Suppliers lists the distinct supplier names INCs were raised against.
func (s *Store) Suppliers(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT DISTINCT supplier FROM nonconformance_reports ORDER BY supplier")
	if err != nil {
		return nil, fmt.Errorf("list INC suppliers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Report, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query INCs: %w", err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// isoDate stores dates year-first so range filters compare correctly.
func isoDate(s string) string {
	d, ok := parseDate(s)
	if !ok {
		return s
	}
	return d.Format("2006-01-02")
}
