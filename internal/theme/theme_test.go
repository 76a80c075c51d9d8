package theme

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incmgr/internal/testutil"
	"incmgr/internal/validation"
)

func TestSettingValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Setting)
		field  string
	}{
		{"unknown element", func(s *Setting) { s.Element = "footer" }, "element"},
		{"bad foreground", func(s *Setting) { s.Foreground = "red" }, "foreground"},
		{"short background", func(s *Setting) { s.Background = "#fff" }, "background"},
		{"unlisted font", func(s *Setting) { s.FontFamily = "Comic; }" }, "font_family"},
		{"tiny font", func(s *Setting) { s.FontSize = 7 }, "font_size"},
		{"huge font", func(s *Setting) { s.FontSize = 33 }, "font_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default("body")
			tt.modify(&s)
			var ve *validation.ValidationErrors
			require.True(t, errors.As(s.Validate(), &ve))
			assert.Equal(t, tt.field, ve.Errors[0].Field)
		})
	}
	assert.NoError(t, Default("navbar").Validate())
}

func TestStoreSaveAndAll(t *testing.T) {
	st := &Store{DB: testutil.SetupTestDB(t)}
	ctx := context.Background()

	all, err := st.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Setting{Default("body"), Default("navbar"), Default("table-header")}, all)
	saved, err := st.Saved(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)

	nav := Setting{Element: "navbar", Foreground: "#FFFFFF", Background: "#123abc", FontFamily: "Arial", FontSize: 14}
	require.NoError(t, st.Save(ctx, nav))
	nav.FontSize = 16
	require.NoError(t, st.Save(ctx, nav))

	all, err = st.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, Setting{Element: "navbar", Foreground: "#ffffff", Background: "#123abc", FontFamily: "Arial", FontSize: 16}, all[1])
	assert.Equal(t, Default("body"), all[0])

	require.NoError(t, st.Save(ctx, Setting{Element: "body", Foreground: "#000000", Background: "#fafafa", FontFamily: "Arial", FontSize: 12}))
	saved, err = st.Saved(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "body", saved[0].Element)
	assert.Equal(t, "navbar", saved[1].Element)

	assert.Error(t, st.Save(ctx, Setting{Element: "navbar", Foreground: "x"}))
}

func TestCSS(t *testing.T) {
	css := CSS([]Setting{
		{Element: "table-header", Foreground: "#111111", Background: "#eeeeee", FontFamily: "Times New Roman", FontSize: 10},
		{Element: "body", Foreground: "red;}</style>", Background: "#ffffff", FontFamily: "Arial", FontSize: 12},
	})
	assert.Contains(t, css, ".table thead th {\n  color: #111111;")
	assert.Contains(t, css, `font-family: "Times New Roman";`)
	assert.Contains(t, css, "font-size: 10px;")
	assert.NotContains(t, css, "red", "invalid settings are skipped")
}
