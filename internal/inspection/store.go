package inspection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrRoutineNotFound = errors.New("inspection routine not found")

// Store persists per-user worklists and saved routines.
type Store struct {
	DB *sql.DB
}

// Worklist returns the user's current rows in worklist order.
func (s *Store) Worklist(ctx context.Context, userID int) ([]Row, error) {
	return worklist(ctx, s.DB, userID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func worklist(ctx context.Context, q querier, userID int) ([]Row, error) {
	rs, err := q.QueryContext(ctx, `SELECT entry_date, notice, item, description, qty_received, supplier, purchase_order, status
		FROM worklist_rows WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query worklist: %w", err)
	}
	defer rs.Close()

	rows := []Row{}
	for rs.Next() {
		var r Row
		if err := rs.Scan(&r.EntryDate, &r.Notice, &r.Item, &r.Description, &r.QtyReceived,
			&r.Supplier, &r.PurchaseOrder, &r.Status); err != nil {
			return nil, fmt.Errorf("scan worklist row: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, rs.Err()
}

// ReplaceWorklist discards the user's worklist and stores rows as pending.
func (s *Store) ReplaceWorklist(ctx context.Context, userID int, rows []Row) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM worklist_rows WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clear worklist: %w", err)
	}
	for i, r := range rows {
		_, err := tx.ExecContext(ctx, `INSERT INTO worklist_rows
			(user_id, position, entry_date, notice, item, description, qty_received, supplier, purchase_order, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, i, r.EntryDate, r.Notice, r.Item, r.Description, r.QtyReceived.String(),
			r.Supplier, r.PurchaseOrder, StatusPending)
		if err != nil {
			return fmt.Errorf("insert worklist row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Apply sets the disposition of the row at index.
func (s *Store) Apply(ctx context.Context, userID, index int, a Action) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE worklist_rows SET status = ? WHERE user_id = ? AND position = ?",
		a.Status(), userID, index)
	if err != nil {
		return fmt.Errorf("update row %d: %w", index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRowIndex, index)
	}
	return nil
}

// SaveRoutine stores the worklist as a routine and clears it. It refuses
// unless every row is processed.
func (s *Store) SaveRoutine(ctx context.Context, userID int) (Routine, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Routine{}, err
	}
	defer tx.Rollback()

	rows, err := worklist(ctx, tx, userID)
	if err != nil {
		return Routine{}, err
	}
	if len(rows) == 0 {
		return Routine{}, ErrEmptyWorklist
	}
	if !AllProcessed(RowFlags(rows)) {
		return Routine{}, ErrIncomplete
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return Routine{}, fmt.Errorf("encode routine: %w", err)
	}
	rt := Routine{
		ID:          uuid.New().String(),
		InspectorID: userID,
		InspectedAt: time.Now().UTC().Format("2006-01-02 15:04:05"),
		Rows:        rows,
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO inspection_routines (id, inspector_id, inspected_at, rows_json) VALUES (?, ?, ?, ?)",
		rt.ID, userID, rt.InspectedAt, string(payload)); err != nil {
		return Routine{}, fmt.Errorf("insert routine: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM worklist_rows WHERE user_id = ?", userID); err != nil {
		return Routine{}, fmt.Errorf("clear worklist: %w", err)
	}
	return rt, tx.Commit()
}

const routineSelect = `SELECT r.id, r.inspector_id, COALESCE(u.username, ''), r.inspected_at, r.rows_json
	FROM inspection_routines r LEFT JOIN users u ON u.id = r.inspector_id`

// ListRoutines returns saved routines, newest first.
func (s *Store) ListRoutines(ctx context.Context) ([]Routine, error) {
	rs, err := s.DB.QueryContext(ctx, routineSelect+" ORDER BY r.inspected_at DESC, r.rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("query routines: %w", err)
	}
	defer rs.Close()

	routines := []Routine{}
	for rs.Next() {
		rt, err := scanRoutine(rs)
		if err != nil {
			return nil, err
		}
		routines = append(routines, rt)
	}
	return routines, rs.Err()
}

// Routine loads one saved routine.
func (s *Store) Routine(ctx context.Context, id string) (Routine, error) {
	rt, err := scanRoutine(s.DB.QueryRowContext(ctx, routineSelect+" WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Routine{}, ErrRoutineNotFound
	}
	return rt, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoutine(sc scanner) (Routine, error) {
	var rt Routine
	var payload string
	if err := sc.Scan(&rt.ID, &rt.InspectorID, &rt.Inspector, &rt.InspectedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Routine{}, err
		}
		return Routine{}, fmt.Errorf("scan routine: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &rt.Rows); err != nil {
		return Routine{}, fmt.Errorf("decode routine %s: %w", rt.ID, err)
	}
	return rt, nil
}
