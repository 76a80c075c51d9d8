// Package suppliers is the registry of suppliers deliveries are inspected
// against.
package suppliers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"incmgr/internal/validation"
)

var (
	ErrNotFound      = errors.New("supplier not found")
	ErrDuplicateCNPJ = errors.New("CNPJ already registered")
)

// Supplier is one registered supplier. LogixName is the name the ERP prints
// in the supplier column of a receiving report.
type Supplier struct {
	ID        int
	LegalName string
	CNPJ      string
	LogixName string
}

// Normalize trims the fields and formats the CNPJ.
func (s *Supplier) Normalize() {
	s.LegalName = strings.TrimSpace(s.LegalName)
	s.LogixName = strings.TrimSpace(s.LogixName)
	s.CNPJ = strings.TrimSpace(s.CNPJ)
	if validation.ValidCNPJ(s.CNPJ) {
		s.CNPJ = validation.FormatCNPJ(s.CNPJ)
	}
}

// Validate checks every field is present and the CNPJ is well formed.
func (s Supplier) Validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "legal_name", s.LegalName)
	validation.ValidateMaxLength(ve, "legal_name", s.LegalName, 100)
	validation.ValidateCNPJ(ve, "cnpj", s.CNPJ)
	validation.RequireField(ve, "logix_name", s.LogixName)
	validation.ValidateMaxLength(ve, "logix_name", s.LogixName, 100)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Store persists suppliers.
type Store struct {
	DB *sql.DB
}

const columns = "id, legal_name, cnpj, logix_name"

func scan(sc interface{ Scan(...any) error }) (Supplier, error) {
	var s Supplier
	err := sc.Scan(&s.ID, &s.LegalName, &s.CNPJ, &s.LogixName)
	return s, err
}

// List returns every supplier ordered by legal name.
func (st *Store) List(ctx context.Context) ([]Supplier, error) {
	rows, err := st.DB.QueryContext(ctx, "SELECT "+columns+" FROM suppliers ORDER BY legal_name, id")
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get loads one supplier.
func (st *Store) Get(ctx context.Context, id int) (Supplier, error) {
	s, err := scan(st.DB.QueryRowContext(ctx, "SELECT "+columns+" FROM suppliers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

func (st *Store) cnpjTaken(ctx context.Context, cnpj string, exceptID int) (bool, error) {
	var n int
	err := st.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM suppliers WHERE cnpj = ? AND id != ?", cnpj, exceptID).Scan(&n)
	return n > 0, err
}

// Create validates and inserts s, returning it with its new ID.
func (st *Store) Create(ctx context.Context, s Supplier) (Supplier, error) {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return s, err
	}
	taken, err := st.cnpjTaken(ctx, s.CNPJ, 0)
	if err != nil {
		return s, err
	}
	if taken {
		return s, ErrDuplicateCNPJ
	}
	res, err := st.DB.ExecContext(ctx, "INSERT INTO suppliers (legal_name, cnpj, logix_name) VALUES (?, ?, ?)",
		s.LegalName, s.CNPJ, s.LogixName)
	if err != nil {
		return s, fmt.Errorf("create supplier: %w", err)
	}
	id, _ := res.LastInsertId()
	s.ID = int(id)
	return s, nil
}

// Update validates s and overwrites the stored supplier with the same ID.
func (st *Store) Update(ctx context.Context, s Supplier) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return err
	}
	taken, err := st.cnpjTaken(ctx, s.CNPJ, s.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateCNPJ
	}
	res, err := st.DB.ExecContext(ctx, "UPDATE suppliers SET legal_name = ?, cnpj = ?, logix_name = ? WHERE id = ?",
		s.LegalName, s.CNPJ, s.LogixName, s.ID)
	if err != nil {
		return fmt.Errorf("update supplier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a supplier.
func (st *Store) Delete(ctx context.Context, id int) error {
	res, err := st.DB.ExecContext(ctx, "DELETE FROM suppliers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete supplier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LegalNames maps upper-cased Logix names to legal names.
func (st *Store) LegalNames(ctx context.Context) (map[string]string, error) {
	list, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(list))
	for _, s := range list {
		names[strings.ToUpper(s.LogixName)] = s.LegalName
	}
	return names, nil
}
