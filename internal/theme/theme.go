// Package theme stores the admin-edited colours and fonts of the UI and
// renders them as a stylesheet.
package theme

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"

	"incmgr/internal/validation"
)

// Elements are the styleable parts of the page, in editor order.
var Elements = []string{"body", "navbar", "table-header"}

// Fonts are the families an admin may pick.
var Fonts = []string{"Helvetica", "Arial", "Verdana", "Georgia", "Times New Roman", "Courier New", "system-ui"}

var selectors = map[string]string{
	"body":         "body",
	"navbar":       ".navbar",
	"table-header": ".table thead th",
}

// Setting is the style of one element.
type Setting struct {
	Element    string
	Foreground string
	Background string
	FontFamily string
	FontSize   int
}

// Default is the style of an element nobody has edited.
func Default(element string) Setting {
	return Setting{Element: element, Foreground: "#000000", Background: "#ffffff", FontFamily: "Helvetica", FontSize: 12}
}

// Validate checks the element, colours, font and size.
func (s Setting) Validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "element", s.Element)
	validation.ValidateEnum(ve, "element", s.Element, Elements)
	validation.ValidateHexColor(ve, "foreground", s.Foreground)
	validation.ValidateHexColor(ve, "background", s.Background)
	validation.RequireField(ve, "font_family", s.FontFamily)
	validation.ValidateEnum(ve, "font_family", s.FontFamily, Fonts)
	validation.ValidateIntRange(ve, "font_size", s.FontSize, 8, 32)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Store persists settings in layout_settings.
type Store struct {
	DB *sql.DB
}

// Saved returns the settings an admin has stored, in element order.
func (st *Store) Saved(ctx context.Context) ([]Setting, error) {
	rows, err := st.DB.QueryContext(ctx, "SELECT element, foreground, background, font_family, font_size FROM layout_settings")
	if err != nil {
		return nil, fmt.Errorf("query layout settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Element, &s.Foreground, &s.Background, &s.FontFamily, &s.FontSize); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return slices.Index(Elements, out[i].Element) < slices.Index(Elements, out[j].Element)
	})
	return out, nil
}

// All returns a setting for every element, defaults filling the gaps.
func (st *Store) All(ctx context.Context) ([]Setting, error) {
	saved, err := st.Saved(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Setting, 0, len(Elements))
	for _, el := range Elements {
		s := Default(el)
		for _, sv := range saved {
			if sv.Element == el {
				s = sv
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Save validates s and upserts it.
func (st *Store) Save(ctx context.Context, s Setting) error {
	s.Foreground = strings.ToLower(strings.TrimSpace(s.Foreground))
	s.Background = strings.ToLower(strings.TrimSpace(s.Background))
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := st.DB.ExecContext(ctx, `INSERT INTO layout_settings (element, foreground, background, font_family, font_size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(element) DO UPDATE SET foreground = excluded.foreground, background = excluded.background,
			font_family = excluded.font_family, font_size = excluded.font_size`,
		s.Element, s.Foreground, s.Background, s.FontFamily, s.FontSize)
	if err != nil {
		return fmt.Errorf("save layout %s: %w", s.Element, err)
	}
	return nil
}

// CSS renders settings as a stylesheet. Settings that fail validation are
// skipped so stored values never reach the page unchecked.
func CSS(settings []Setting) string {
	var b strings.Builder
	for _, s := range settings {
		if s.Validate() != nil {
			continue
		}
		fmt.Fprintf(&b, "%s {\n  color: %s;\n  background-color: %s;\n  font-family: %q;\n  font-size: %dpx;\n}\n",
			selectors[s.Element], s.Foreground, s.Background, s.FontFamily, s.FontSize)
	}
	return b.String()
}
