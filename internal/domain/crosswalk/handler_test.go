package crosswalk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newRunContext(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/crosswalks/run", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_ListCrosswalks(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/crosswalks", nil), rec)

	if err := h.ListCrosswalks(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Crosswalks []Pair `json:"crosswalks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Crosswalks) != 4 {
		t.Errorf("expected 4 default crosswalks, got %v", body.Crosswalks)
	}
}

func TestHandler_RunCrosswalk(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	c, rec := newRunContext(echo.New(), `{"source":"NDC","target":"RXNORM","code":"0004-0038-22"}`)

	if err := h.RunCrosswalk(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out Outcome
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Result != ResultFound || len(out.Terms) != 1 {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestHandler_RunCrosswalk_Undefined(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	c, rec := newRunContext(echo.New(), `{"source":"UMLS","target":"NDC","code":"C0000970"}`)

	if err := h.RunCrosswalk(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestHandler_RunCrosswalk_BadRequest(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	tests := []string{
		`{"source":"NDC","target":"RXNORM"}`,
		`{"source":"ICD","target":"RXNORM","code":"1"}`,
		`{"source":"NDC","target":"RXNORM","code":"12-34"}`,
	}
	for _, body := range tests {
		c, _ := newRunContext(echo.New(), body)
		err := h.RunCrosswalk(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", body, err)
		}
	}
}
