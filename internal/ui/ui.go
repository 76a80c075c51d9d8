package ui

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"slices"
	"strconv"

	"incmgr/internal/datefmt"
	"incmgr/internal/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page is the data every page template receives.
type Page struct {
	Title       string
	CompanyName string
	Username    string
	IsAdmin     bool
	CSRFToken   string
	NightMode   bool
	Flashes     []Flash
	Data        any
}

var funcs = template.FuncMap{
	"dateTitle": datefmt.Title,
	"dayFirst":  datefmt.FromTimestamp,
	"dateInput": datefmt.ForInput,
	"flag":      strconv.FormatBool,
	"hasError":  hasError,
	"contains":  slices.Contains[[]string],
}

// hasError reports whether errs holds a message for field.
func hasError(errs []validation.ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Renderer holds one parsed template set per page, each wrapped in the
// shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

// PageNames lists every page template.
var PageNames = []string{"login", "import", "crm_token", "worklist", "routines", "users", "suppliers",
	"inc_list", "inc_form", "inc_detail", "inc_overdue", "inc_monitor", "layout_editor"}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range PageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes the named page into w. Output is buffered so a template
// error still yields a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, p Page) {
	t, ok := r.pages[name]
	if !ok {
		http.Error(w, "unknown page "+name, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const flashCookie = "incmgr_flash"

// AddFlash queues a message for the next page the browser renders.
func AddFlash(w http.ResponseWriter, r *http.Request, kind, msg string) {
	flashes := readFlashes(r)
	flashes = append(flashes, Flash{Kind: kind, Message: msg})
	data, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	c := &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, c)
	// Later AddFlash calls in the same request must see this one.
	r.AddCookie(c)
}

// TakeFlashes returns queued messages and clears them.
func TakeFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := readFlashes(r)
	if len(flashes) > 0 {
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	}
	return flashes
}

func readFlashes(r *http.Request) []Flash {
	var c *http.Cookie
	for _, ck := range r.Cookies() {
		if ck.Name == flashCookie {
			c = ck
		}
	}
	if c == nil || c.Value == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if json.Unmarshal(data, &flashes) != nil {
		return nil
	}
	return flashes
}
