package routes

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"incmgr/internal/auth"
	"incmgr/internal/config"
	"incmgr/internal/crm"
	"incmgr/internal/server"
	"incmgr/internal/testutil"
	"incmgr/internal/ui"
	"incmgr/internal/websocket"
)

func newTestServer(t *testing.T) (http.Handler, *server.App) {
	t.Helper()
	cfg := config.Default()
	cfg.CRMBaseURL = "https://crm.example.com/item.php?module=stock"
	cfg.UploadDir = t.TempDir()
	app := &server.App{DB: testutil.SetupTestDB(t), Hub: websocket.NewHub(), Config: cfg}
	renderer, err := ui.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return New(app, renderer), app
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestUnauthenticated(t *testing.T) {
	h, _ := newTestServer(t)

	testutil.AssertRedirect(t, serve(h, httptest.NewRequest("GET", "/", nil)), "/login")
	testutil.AssertStatus(t, serve(h, httptest.NewRequest("GET", "/login", nil)), http.StatusOK)
	testutil.AssertStatus(t, serve(h, httptest.NewRequest("GET", "/static/style.css", nil)), http.StatusOK)
	testutil.AssertStatus(t, serve(h, httptest.NewRequest("GET", "/api/v1/crm/link?item=A", nil)), http.StatusUnauthorized)
}

func TestLoginAndCRMFlow(t *testing.T) {
	h, app := newTestServer(t)

	w := serve(h, testutil.FormRequest("/login", url.Values{
		"username": {"admin"},
		"password": {testutil.AdminPassword},
	}, "", ""))
	testutil.AssertRedirect(t, w, "/inspection")

	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("login did not set a session cookie")
	}

	testutil.AssertRedirect(t, serve(h, testutil.AuthedRequest("GET", "/", nil, token)), "/inspection")
	testutil.AssertRedirect(t, serve(h, testutil.AuthedRequest("GET", "/inspection", nil, token)), "/inspection/import")
	testutil.AssertRedirect(t, serve(h, testutil.AuthedRequest("GET", "/inspection/import", nil, token)), "/crm/token")

	link := url.Values{"crm_link": {"https://crm.example.com/item.php?token=c0ffee"}}
	testutil.AssertStatus(t, serve(h, testutil.FormRequest("/crm/token", link, token, "")), http.StatusForbidden)

	csrf := testutil.CSRFToken(t, app.DB, token)
	testutil.AssertRedirect(t, serve(h, testutil.FormRequest("/crm/token", link, token, csrf)), "/inspection/import")

	w = serve(h, testutil.AuthedRequest("GET", "/api/v1/crm/link?item=ABC.12345", nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	var data struct {
		URL string `json:"url"`
	}
	testutil.DecodeEnvelope(t, w, &data)
	want := "https://crm.example.com/item.php?module=stock&token=c0ffee&cod_item=ABC.12345&filter_cod=abc.12345"
	if data.URL != want {
		t.Errorf("url = %q, want %q", data.URL, want)
	}

	testutil.AssertRedirect(t, serve(h, testutil.FormRequest("/logout", nil, token, csrf)), "/login")
	testutil.AssertRedirect(t, serve(h, testutil.AuthedRequest("GET", "/inspection", nil, token)), "/login?next=%2Finspection")
}

func TestAdminOnlyUsers(t *testing.T) {
	h, app := newTestServer(t)
	user := testutil.LoginUser(t, app.DB, "inspector")
	testutil.AssertStatus(t, serve(h, testutil.AuthedRequest("GET", "/users", nil, user)), http.StatusForbidden)

	admin := testutil.LoginAdmin(t, app.DB)
	w := serve(h, testutil.AuthedRequest("GET", "/users", nil, admin))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "inspector") {
		t.Error("users page missing inspector")
	}
}

func TestNightModePersistsAcrossPages(t *testing.T) {
	h, app := newTestServer(t)
	token := testutil.LoginAdmin(t, app.DB)
	csrf := testutil.CSRFToken(t, app.DB, token)

	req := testutil.AuthedRequest("POST", "/prefs/night-mode", nil, token)
	req.Header.Set("X-CSRF-Token", csrf)
	testutil.AssertStatus(t, serve(h, req), http.StatusOK)

	w := serve(h, testutil.AuthedRequest("GET", "/crm/token", nil, token))
	if !strings.Contains(w.Body.String(), `<body class="night-mode">`) {
		t.Error("night mode not rendered after toggle")
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	h, _ := newTestServer(t)
	w := serve(h, httptest.NewRequest("GET", "/login", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestOversizedUploadShowsFlash(t *testing.T) {
	cfg := config.Default()
	cfg.CRMBaseURL = "https://crm.example.com/item.php"
	cfg.UploadMaxBytes = 2 << 10
	app := &server.App{DB: testutil.SetupTestDB(t), Hub: websocket.NewHub(), Config: cfg}
	renderer, err := ui.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	h := New(app, renderer)

	token := testutil.LoginAdmin(t, app.DB)
	csrf := testutil.CSRFToken(t, app.DB, token)
	tokens := &crm.TokenStore{DB: app.DB}
	if err := tokens.Set(context.Background(), token, "c0ffee"); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("csrf_token", csrf)
	fw, err := mw.CreateFormFile("file", "big.lst")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(bytes.Repeat([]byte("x"), 8<<10))
	mw.Close()

	req := testutil.AuthedRequest("POST", "/inspection/import", body.Bytes(), token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(h, req)
	testutil.AssertRedirect(t, w, "/inspection/import")

	next := testutil.AuthedRequest("GET", "/inspection/import", nil, token)
	for _, c := range w.Result().Cookies() {
		if c.Name != auth.SessionCookie && c.MaxAge >= 0 {
			next.AddCookie(c)
		}
	}
	page := serve(h, next)
	testutil.AssertStatus(t, page, http.StatusOK)
	if !strings.Contains(page.Body.String(), "Upload too large") {
		t.Errorf("import page missing the size message:\n%s", page.Body.String())
	}
}

func TestOversizedAPIBodyIs413(t *testing.T) {
	cfg := config.Default()
	cfg.UploadMaxBytes = 64
	app := &server.App{DB: testutil.SetupTestDB(t), Hub: websocket.NewHub(), Config: cfg}
	renderer, err := ui.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	h := New(app, renderer)
	token := testutil.LoginAdmin(t, app.DB)

	form := url.Values{"padding": {strings.Repeat("x", 256)}}
	req := testutil.FormRequest("/api/v1/crm/link", form, token, "")
	w := serve(h, req)
	testutil.AssertStatus(t, w, http.StatusRequestEntityTooLarge)
	if _, code := testutil.DecodeError(t, w); code != "REQUEST_TOO_LARGE" {
		t.Errorf("code = %q, want REQUEST_TOO_LARGE", code)
	}
}

func TestThemeCSSIsPublic(t *testing.T) {
	h, _ := newTestServer(t)
	w := serve(h, httptest.NewRequest("GET", "/theme.css", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("content type = %q", ct)
	}
	testutil.AssertRedirect(t, serve(h, httptest.NewRequest("GET", "/uploads/a.png", nil)), "/login?next=%2Fuploads%2Fa.png")
}

func TestAdminOnlySuppliersAndLayout(t *testing.T) {
	h, app := newTestServer(t)
	user := testutil.LoginUser(t, app.DB, "inspector")
	for _, path := range []string{"/suppliers", "/layout"} {
		testutil.AssertStatus(t, serve(h, testutil.AuthedRequest("GET", path, nil, user)), http.StatusForbidden)
	}

	admin := testutil.LoginAdmin(t, app.DB)
	csrf := testutil.CSRFToken(t, app.DB, admin)
	form := url.Values{"legal_name": {"ACME Indústria Ltda"}, "cnpj": {"11222333000181"}, "logix_name": {"ACME LTDA"}}
	testutil.AssertRedirect(t, serve(h, testutil.FormRequest("/suppliers", form, admin, csrf)), "/suppliers")

	w := serve(h, testutil.AuthedRequest("GET", "/suppliers", nil, admin))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "11.222.333/0001-81") {
		t.Error("registered supplier not listed")
	}
}

func TestINCFlow(t *testing.T) {
	h, app := newTestServer(t)
	token := testutil.LoginUser(t, app.DB, "inspector")
	csrf := testutil.CSRFToken(t, app.DB, token)

	testutil.AssertStatus(t, serve(h, testutil.AuthedRequest("GET", "/inc/new", nil, token)), http.StatusOK)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"csrf_token": csrf, "notice": "1234", "date": "2026-10-01", "representative": "Ana",
		"supplier": "ACME LTDA", "item": "MPR.02199", "qty_received": "10", "qty_defective": "1",
		"urgency": "critical", "status": "in_progress",
	} {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("photos", "defect.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("img"))
	mw.Close()

	req := testutil.AuthedRequest("POST", "/inc", body.Bytes(), token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	testutil.AssertRedirect(t, serve(h, req), "/inc/1")

	for _, path := range []string{"/inc", "/inc/1", "/inc/1/edit", "/inc/overdue", "/inc/monitor?supplier=ACME+LTDA"} {
		testutil.AssertStatus(t, serve(h, testutil.AuthedRequest("GET", path, nil, token)), http.StatusOK)
	}
	w := serve(h, testutil.AuthedRequest("GET", "/inc/1/pdf", nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.HasPrefix(w.Body.String(), "%PDF-") {
		t.Error("INC PDF is not a PDF")
	}
	testutil.AssertStatus(t, serve(h, testutil.AuthedRequest("GET", "/inc/2", nil, token)), http.StatusNotFound)

	var photos string
	app.DB.QueryRow("SELECT photos_json FROM nonconformance_reports WHERE id = 1").Scan(&photos)
	name := strings.Trim(photos, `[]"`)
	w = serve(h, testutil.AuthedRequest("GET", "/uploads/"+name, nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	if w.Body.String() != "img" {
		t.Errorf("photo body = %q", w.Body.String())
	}

	testutil.AssertStatus(t, serve(h, testutil.FormRequest("/inc/1/delete", nil, token, "")), http.StatusForbidden)
	testutil.AssertRedirect(t, serve(h, testutil.FormRequest("/inc/1/delete", nil, token, csrf)), "/inc")
	testutil.AssertStatus(t, serve(h, testutil.AuthedRequest("GET", "/uploads/"+name, nil, token)), http.StatusNotFound)
}
