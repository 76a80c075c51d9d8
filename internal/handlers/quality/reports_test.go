package quality

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incmgr/internal/auth"
	"incmgr/internal/handlers/common"
	"incmgr/internal/nonconformance"
	"incmgr/internal/server"
	"incmgr/internal/suppliers"
	"incmgr/internal/testutil"
	"incmgr/internal/ui"
	"incmgr/internal/websocket"
)

var today = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type fixture struct {
	h    *Handler
	db   *sql.DB
	dir  string
	sess auth.Session
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	renderer, err := ui.NewRenderer()
	require.NoError(t, err)
	token := testutil.LoginAdmin(t, db)
	sess, err := auth.LookupSession(context.Background(), db, token, time.Hour)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "uploads")
	h := &Handler{
		Handler:   &common.Handler{DB: db, UI: renderer, CompanyName: "ACME"},
		Hub:       websocket.NewHub(),
		Store:     &nonconformance.Store{DB: db},
		Suppliers: &suppliers.Store{DB: db},
		Photos:    nonconformance.PhotoDir{Root: dir},
		PerPage:   20,
		Now:       func() time.Time { return today },
	}
	return &fixture{h: h, db: db, dir: dir, sess: sess}
}

func (f *fixture) req(method, target string, form url.Values) *http.Request {
	var r *http.Request
	if form != nil {
		r = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(server.WithSession(r.Context(), f.sess))
}

// multipartReq posts form with one photos part per name.
func (f *fixture) multipartReq(t *testing.T, target string, form url.Values, photos ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, vs := range form {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	for _, name := range photos {
		fw, err := mw.CreateFormFile("photos", name)
		require.NoError(t, err)
		fw.Write([]byte("img"))
	}
	require.NoError(t, mw.Close())
	r := httptest.NewRequest(http.MethodPost, target, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r.WithContext(server.WithSession(r.Context(), f.sess))
}

func withID(r *http.Request, id int) *http.Request {
	r.SetPathValue("id", strconv.Itoa(id))
	return r
}

func incForm() url.Values {
	return url.Values{
		"notice":             {"1234"},
		"date":               {"2026-10-01"},
		"representative":     {"Ana"},
		"supplier":           {"ACME LTDA"},
		"item":               {"mpr.02199"},
		"qty_received":       {"100"},
		"qty_defective":      {"3"},
		"defect_description": {"scratched housing"},
		"recommended_action": {"return to supplier"},
		"urgency":            {"moderate"},
		"status":             {"in_progress"},
	}
}

func (f *fixture) seed(t *testing.T, mutate func(*nonconformance.Report)) nonconformance.Report {
	t.Helper()
	r := nonconformance.Report{
		Notice: 1234, Date: "2026-10-01", Representative: "Ana", Supplier: "ACME LTDA",
		Item: "MPR.02199", QtyReceived: 100, QtyDefective: 3,
	}
	if mutate != nil {
		mutate(&r)
	}
	created, err := f.h.Store.Create(context.Background(), r, nil)
	require.NoError(t, err)
	return created
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateWithPhotos(t *testing.T) {
	f := setup(t)

	w := httptest.NewRecorder()
	f.h.Create(w, f.multipartReq(t, "/inc", incForm(), "defect.png", "close up.jpg"))
	testutil.AssertRedirect(t, w, "/inc/1")

	rep, err := f.h.Store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.OC)
	assert.Equal(t, "MPR.02199", rep.Item)
	assert.Equal(t, "admin", rep.CreatedBy)
	require.Len(t, rep.Photos, 2)
	assert.True(t, strings.HasSuffix(rep.Photos[1], "_close_up.jpg"))
	assert.ElementsMatch(t, rep.Photos, f.files(t))

	var action string
	f.db.QueryRow("SELECT action FROM audit_log WHERE module = 'inc'").Scan(&action)
	assert.Equal(t, "CREATE", action)
}

func TestCreateRejectedLeavesNoFiles(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		photo   string
		message string
	}{
		{"defective above received", "qty_defective", "500", "a.png", "<li>qty_defective:"},
		{"notice not a number", "notice", "12a", "a.png", "<li>notice: must be a whole number"},
		{"unknown urgency", "urgency", "whenever", "a.png", "<li>urgency:"},
		{"photo type", "item", "MPR.02199", "notes.txt", "<li>photos: notes.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			form := incForm()
			form.Set(tt.field, tt.value)

			w := httptest.NewRecorder()
			f.h.Create(w, f.multipartReq(t, "/inc", form, tt.photo))
			testutil.AssertStatus(t, w, http.StatusBadRequest)
			assert.Contains(t, w.Body.String(), tt.message)
			assert.Empty(t, f.files(t))

			var n int
			f.db.QueryRow("SELECT COUNT(*) FROM nonconformance_reports").Scan(&n)
			assert.Zero(t, n)
		})
	}
}

func TestCreateRestrictsRepresentatives(t *testing.T) {
	f := setup(t)
	f.h.Representatives = []string{"Bruno", "Carla"}

	w := httptest.NewRecorder()
	f.h.Create(w, f.req("POST", "/inc", incForm()))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	form := incForm()
	form.Set("representative", "Carla")
	w = httptest.NewRecorder()
	f.h.Create(w, f.req("POST", "/inc", form))
	testutil.AssertRedirect(t, w, "/inc/1")
}

func TestNewFormPrefills(t *testing.T) {
	f := setup(t)
	_, err := f.h.Suppliers.Create(context.Background(), suppliers.Supplier{LegalName: "ACME Indústria Ltda", CNPJ: "11222333000181", LogixName: "ACME LTDA"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.h.NewForm(w, f.req("GET", "/inc/new?notice=77&item=ABC.00001", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	body := w.Body.String()
	assert.Contains(t, body, `value="77"`)
	assert.Contains(t, body, `value="ABC.00001"`)
	assert.Contains(t, body, `value="2026-10-17"`)
	assert.Contains(t, body, "ACME Indústria Ltda")
}

func TestDetailAndEdit(t *testing.T) {
	f := setup(t)
	rep := f.seed(t, func(r *nonconformance.Report) {
		r.Date = "2026-09-01"
		r.Urgency = nonconformance.UrgencyCritical
	})

	w := httptest.NewRecorder()
	f.h.Detail(w, withID(f.req("GET", "/inc/1", nil), rep.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "ACME LTDA")
	assert.Contains(t, w.Body.String(), "11-09-2026")

	w = httptest.NewRecorder()
	f.h.EditForm(w, withID(f.req("GET", "/inc/1/edit", nil), rep.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `action="/inc/1"`)

	for _, id := range []string{"99", "x"} {
		r := f.req("GET", "/inc/"+id, nil)
		r.SetPathValue("id", id)
		w = httptest.NewRecorder()
		f.h.Detail(w, r)
		testutil.AssertStatus(t, w, http.StatusNotFound)
	}
}

func TestUpdateAddsPhotosAndKeepsOC(t *testing.T) {
	f := setup(t)
	w := httptest.NewRecorder()
	f.h.Create(w, f.multipartReq(t, "/inc", incForm(), "first.png"))
	testutil.AssertRedirect(t, w, "/inc/1")

	form := incForm()
	form.Set("status", "completed")
	form.Set("date", "")
	w = httptest.NewRecorder()
	f.h.Update(w, withID(f.multipartReq(t, "/inc/1", form, "second.png"), 1))
	testutil.AssertRedirect(t, w, "/inc/1")

	rep, err := f.h.Store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, nonconformance.StatusCompleted, rep.Status)
	assert.Equal(t, 1, rep.OC)
	assert.Equal(t, "2026-10-01", rep.Date, "blank date keeps the stored one")
	require.Len(t, rep.Photos, 2)
	assert.True(t, strings.HasSuffix(rep.Photos[0], "_first.png"))
	assert.Len(t, f.files(t), 2)

	form.Set("qty_defective", "500")
	w = httptest.NewRecorder()
	f.h.Update(w, withID(f.multipartReq(t, "/inc/1", form, "third.png"), 1))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Len(t, f.files(t), 2)
}

func TestRemovePhotoAndDelete(t *testing.T) {
	f := setup(t)
	w := httptest.NewRecorder()
	f.h.Create(w, f.multipartReq(t, "/inc", incForm(), "a.png", "b.png"))
	testutil.AssertRedirect(t, w, "/inc/1")
	rep, _ := f.h.Store.Get(context.Background(), 1)

	w = httptest.NewRecorder()
	f.h.RemovePhoto(w, withID(f.req("POST", "/inc/1/photos/remove", url.Values{"photo": {"other.png"}}), 1))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	f.h.RemovePhoto(w, withID(f.req("POST", "/inc/1/photos/remove", url.Values{"photo": {rep.Photos[0]}}), 1))
	testutil.AssertRedirect(t, w, "/inc/1/edit")
	got, _ := f.h.Store.Get(context.Background(), 1)
	assert.Equal(t, rep.Photos[1:], got.Photos)
	assert.Equal(t, rep.Photos[1:], f.files(t))

	w = httptest.NewRecorder()
	f.h.Delete(w, withID(f.req("POST", "/inc/1/delete", url.Values{}), 1))
	testutil.AssertRedirect(t, w, "/inc")
	assert.Empty(t, f.files(t))

	w = httptest.NewRecorder()
	f.h.Delete(w, withID(f.req("POST", "/inc/1/delete", url.Values{}), 1))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestPhotoServesOnlyStoredNames(t *testing.T) {
	f := setup(t)
	name, err := f.h.Photos.Save("defect.png", strings.NewReader("img"))
	require.NoError(t, err)

	r := f.req("GET", "/uploads/"+name, nil)
	r.SetPathValue("name", name)
	w := httptest.NewRecorder()
	f.h.Photo(w, r)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "img", w.Body.String())

	for _, bad := range []string{"../secret.png", ".png", "x.txt"} {
		r := f.req("GET", "/uploads/x", nil)
		r.SetPathValue("name", bad)
		w := httptest.NewRecorder()
		f.h.Photo(w, r)
		testutil.AssertStatus(t, w, http.StatusNotFound)
	}
}

func TestListPagesAndFilters(t *testing.T) {
	f := setup(t)
	f.h.PerPage = 2
	for i := 1; i <= 3; i++ {
		f.seed(t, func(r *nonconformance.Report) { r.Notice = 100 + i })
	}
	f.seed(t, func(r *nonconformance.Report) { r.Notice = 200; r.Supplier = "BETA" })

	w := httptest.NewRecorder()
	f.h.List(w, f.req("GET", "/inc", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `href="/inc?page=2"`)

	w = httptest.NewRecorder()
	f.h.List(w, f.req("GET", "/inc?supplier=beta", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	body := w.Body.String()
	assert.Contains(t, body, "BETA")
	assert.NotContains(t, body, "ACME LTDA")
	assert.NotContains(t, body, "page=2")
}

func TestOverdueListsLateInProgress(t *testing.T) {
	f := setup(t)
	f.seed(t, func(r *nonconformance.Report) {
		r.Notice, r.Date, r.Urgency = 1, "2026-09-01", nonconformance.UrgencyCritical
	})
	f.seed(t, func(r *nonconformance.Report) {
		r.Notice, r.Date, r.Urgency, r.Status = 2, "2026-08-01", nonconformance.UrgencyCritical, nonconformance.StatusCompleted
	})
	f.seed(t, func(r *nonconformance.Report) {
		r.Notice, r.Date, r.Urgency = 3, "2026-10-10", nonconformance.UrgencyLow
	})

	w := httptest.NewRecorder()
	f.h.Overdue(w, f.req("GET", "/inc/overdue", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	body := w.Body.String()
	assert.Contains(t, body, `href="/inc/1"`)
	assert.NotContains(t, body, `href="/inc/2"`)
	assert.NotContains(t, body, `href="/inc/3"`)
}

func TestExportFormats(t *testing.T) {
	f := setup(t)
	f.seed(t, nil)
	f.seed(t, func(r *nonconformance.Report) { r.Supplier = "BETA" })

	w := httptest.NewRecorder()
	f.h.Export(w, f.req("GET", "/inc/export?supplier=beta", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "BETA")

	w = httptest.NewRecorder()
	f.h.Export(w, f.req("GET", "/inc/export?format=xlsx", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = httptest.NewRecorder()
	f.h.Export(w, f.req("GET", "/inc/export?format=ods", nil))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestReportPDF(t *testing.T) {
	f := setup(t)
	rep := f.seed(t, nil)

	w := httptest.NewRecorder()
	f.h.PDF(w, withID(f.req("GET", "/inc/1/pdf", nil), rep.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, `attachment; filename="inc_1234.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestPrintLabel(t *testing.T) {
	f := setup(t)
	rep := f.seed(t, nil)

	w := httptest.NewRecorder()
	f.h.PrintLabel(w, withID(f.req("POST", "/inc/1/label", url.Values{}), rep.ID))
	testutil.AssertRedirect(t, w, "/inc/1")
	assert.Contains(t, flash(w), "not configured")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- ""
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		got <- string(b)
	}()

	f.h.Printer = &nonconformance.Printer{Addr: ln.Addr().String(), Timeout: 2 * time.Second}
	w = httptest.NewRecorder()
	f.h.PrintLabel(w, withID(f.req("POST", "/inc/1/label", url.Values{}), rep.ID))
	testutil.AssertRedirect(t, w, "/inc/1")

	select {
	case data := <-got:
		assert.Equal(t, nonconformance.Label(rep), data)
	case <-time.After(2 * time.Second):
		t.Fatal("printer received nothing")
	}
}

func TestMonitor(t *testing.T) {
	f := setup(t)
	f.seed(t, func(r *nonconformance.Report) { r.Date = "2026-08-03" })
	f.seed(t, func(r *nonconformance.Report) { r.Date = "2026-09-15" })
	f.seed(t, func(r *nonconformance.Report) { r.Date = "2026-09-20" })
	f.seed(t, func(r *nonconformance.Report) { r.Supplier = "BETA" })

	w := httptest.NewRecorder()
	f.h.Monitor(w, f.req("GET", "/inc/monitor", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.NotContains(t, w.Body.String(), "<svg")
	assert.Contains(t, w.Body.String(), "<option>BETA</option>")

	w = httptest.NewRecorder()
	f.h.Monitor(w, f.req("GET", "/inc/monitor?supplier=ACME+LTDA&from=2026-08-01&to=2026-09-30", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	body := w.Body.String()
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "<title>08-2026: 1</title>")
	assert.Contains(t, body, "<title>09-2026: 2</title>")
	assert.NotContains(t, body, "<title>10-2026")
}

func TestMonitorPDF(t *testing.T) {
	f := setup(t)
	f.seed(t, nil)

	w := httptest.NewRecorder()
	f.h.MonitorPDF(w, f.req("GET", "/inc/monitor/pdf?supplier=ACME+LTDA", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = httptest.NewRecorder()
	f.h.MonitorPDF(w, f.req("GET", "/inc/monitor/pdf?supplier=NOBODY", nil))
	testutil.AssertRedirect(t, w, "/inc/monitor?supplier=NOBODY")
	assert.Contains(t, flash(w), "No INCs")
}

func TestChartBarsScaleToPeak(t *testing.T) {
	bars := chartBars([]nonconformance.MonthCount{{Month: "01-2026", Count: 1}, {Month: "02-2026", Count: 4}})
	require.Len(t, bars, 2)
	assert.Equal(t, chartHeight/4, bars[0].Height)
	assert.Equal(t, chartHeight, bars[1].Height)
	assert.Equal(t, chartBase-chartHeight, bars[1].Y)
	assert.Equal(t, chartSlot, bars[1].X-bars[0].X)
	assert.Empty(t, chartBars(nil))
}

// flash returns the flash messages a redirect queued.
func flash(w *httptest.ResponseRecorder) string {
	r := httptest.NewRequest("GET", "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	var msgs []string
	for _, fl := range ui.TakeFlashes(httptest.NewRecorder(), r) {
		msgs = append(msgs, fl.Message)
	}
	return strings.Join(msgs, "\n")
}
