package response

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, map[string]string{"url": "https://crm.example.com/?a=1&b=2"})
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), `{"data":{"url":`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestErrCode(t *testing.T) {
	w := httptest.NewRecorder()
	ErrCode(w, "CRM token unavailable", "CRM_TOKEN_UNAVAILABLE", http.StatusPreconditionFailed)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d", w.Code)
	}
	want := `{"error":"CRM token unavailable","code":"CRM_TOKEN_UNAVAILABLE"}`
	if strings.TrimSpace(w.Body.String()) != want {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	Err(w, "boom", http.StatusInternalServerError)
	if strings.Contains(w.Body.String(), `"code"`) {
		t.Error("empty code should be omitted")
	}
}
