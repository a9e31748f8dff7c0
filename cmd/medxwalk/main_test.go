package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/medxwalk/internal/config"
	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/crosswalk"
	"github.com/ehr/medxwalk/internal/platform/auth"
)

const signingKey = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Env:                "development",
		TerminologyBackend: config.BackendCatalog,
		CatalogPath:        "../../data/catalog.yaml",
		LoaderWorkers:      4,
		AdapterTimeout:     time.Second,
		AuthIssuer:         "medxwalk",
		CORSOrigins:        []string{"*"},
		MetricsEnabled:     true,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, a *app, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	newRouter(a).ServeHTTP(rec, req)
	return rec
}

func TestNewApp_DefaultCrosswalks(t *testing.T) {
	a := newTestApp(t, testConfig())
	for _, p := range []struct{ source, target string }{
		{"NDC", "RXNORM"},
		{"RXNORM", "NDC"},
		{"RXNORM", "SNOMEDCT_US"},
		{"NDC", "SNOMEDCT_US"},
	} {
		if !a.xwalk.Engine().Has(p.source, p.target) {
			t.Errorf("expected crosswalk %s -> %s", p.source, p.target)
		}
	}
}

func TestNewApp_MissingCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.CatalogPath = "does-not-exist.yaml"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for a missing catalog")
	}
}

func TestNewApp_NDCFallsBackToSecondary(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	e, err := a.meds.Get(ctx, codesystem.NDC, "0002-3227-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := e.Valid(ctx)
	if err != nil || !ok {
		t.Fatalf("expected secondary NDC provider to validate, got %v %v", ok, err)
	}

	out, err := a.xwalk.Translate(ctx, codesystem.NDC, "RXNORM", "0002-3227-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result != crosswalk.ResultFound || len(out.Terms) != 1 || out.Terms[0].Code != "310965" {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestNewApp_RxNormToNDCFallsBackToSecondary(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	for _, tt := range []struct{ rxcui, ndc string }{
		{"313782", "0004-0038-22"},
		{"310965", "0002-3227-30"},
	} {
		out, err := a.xwalk.Translate(ctx, codesystem.Normalized, "NDC", tt.rxcui)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.rxcui, err)
		}
		if out.Result != crosswalk.ResultFound || len(out.Terms) != 1 || out.Terms[0].Code != tt.ndc {
			t.Errorf("%s: expected %s, got %+v", tt.rxcui, tt.ndc, out)
		}
	}

	out, err := a.xwalk.Translate(ctx, codesystem.Normalized, "NDC", "161")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result != crosswalk.ResultNoResult {
		t.Errorf("expected no_result for an ingredient without products, got %+v", out)
	}
}

func TestRouter_Health(t *testing.T) {
	a := newTestApp(t, testConfig())
	rec := do(t, a, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestRouter_Lookup(t *testing.T) {
	a := newTestApp(t, testConfig())
	rec := do(t, a, http.MethodGet, "/api/v1/codes/RXNORM/313782", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Code     string `json:"code"`
		Validity string `json:"validity"`
		TermType string `json:"tty"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Code != "313782" || view.TermType != "SCD" {
		t.Errorf("unexpected view %+v", view)
	}

	if rec := do(t, a, http.MethodGet, "/api/v1/codes/NDC/12-34", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed NDC, got %d", rec.Code)
	}
	if rec := do(t, a, http.MethodGet, "/api/v1/codes/RXNORM/999999", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown code, got %d", rec.Code)
	}
}

func TestRouter_CrosswalkRun(t *testing.T) {
	a := newTestApp(t, testConfig())
	rec := do(t, a, http.MethodPost, "/api/v1/crosswalks/run",
		`{"source":"NDC","target":"SNOMEDCT_US","code":"0004-0038-22"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out crosswalk.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Result != crosswalk.ResultFound || len(out.Terms) != 1 || out.Terms[0].Code != "322236009" {
		t.Errorf("unexpected outcome %+v", out)
	}

	rec = do(t, a, http.MethodPost, "/api/v1/crosswalks/run",
		`{"source":"NDC","target":"CPT","code":"0004-0038-22"}`, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an undefined crosswalk, got %d", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	a := newTestApp(t, testConfig())
	do(t, a, http.MethodGet, "/api/v1/codes/RXNORM/161", "", "")

	rec := do(t, a, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `medxwalk_registry_entities{system="RXNORM"}`) {
		t.Error("expected registry gauge")
	}
	if !strings.Contains(body, `medxwalk_adapter_calls_total{op="fetch_base",provider="rxnorm"`) {
		t.Error("expected adapter call counter")
	}
}

func TestRouter_Auth(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = signingKey
	a := newTestApp(t, cfg)

	if rec := do(t, a, http.MethodGet, "/api/v1/codes/RXNORM/161", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(t, a, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected public health check, got %d", rec.Code)
	}

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(signingKey)}
	reader, err := auth.IssueToken(jwtCfg, "reader", []string{auth.ScopeCodesRead}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, a, http.MethodGet, "/api/v1/codes/RXNORM/161", "", reader); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with codes:read, got %d", rec.Code)
	}
	rec := do(t, a, http.MethodPost, "/api/v1/crosswalks/run",
		`{"source":"RXNORM","target":"NDC","code":"313782"}`, reader)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without crosswalks:run, got %d", rec.Code)
	}
}

func TestEntityArgs(t *testing.T) {
	system, code, err := entityArgs([]string{"rxcui", " 161 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != codesystem.Normalized || code != "161" {
		t.Errorf("got %s %q", system, code)
	}

	_, _, err = entityArgs([]string{"NDC", "not-an-ndc"})
	var verr *codesystem.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}

	if _, _, err := entityArgs([]string{"ICD10", "A00"}); err == nil {
		t.Error("expected unsupported system error")
	}
}
