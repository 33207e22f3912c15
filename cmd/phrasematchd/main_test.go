package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/praetorian-labs/phrasematch/internal/builder"
	"github.com/praetorian-labs/phrasematch/internal/config"
	"github.com/praetorian-labs/phrasematch/internal/hostbind"
	"github.com/praetorian-labs/phrasematch/internal/logger"
	"github.com/praetorian-labs/phrasematch/internal/matcher"
	"github.com/praetorian-labs/phrasematch/internal/metrics"
)

func testBinding(t *testing.T) *hostbind.Binding {
	t.Helper()
	dir := t.TempDir()
	if _, err := builder.GenerateFixture(dir); err != nil {
		t.Fatalf("GenerateFixture: %v", err)
	}
	log := logger.New("TEST", "error")
	m, err := matcher.Load(
		filepath.Join(dir, "phrases.daac"), filepath.Join(dir, "payloads.bin"), filepath.Join(dir, "manifest.json"), log,
	)
	if err != nil {
		t.Fatalf("matcher.Load: %v", err)
	}
	t.Cleanup(func() { m.Close() }) //nolint:errcheck // test cleanup
	return hostbind.New(m)
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultPolicy: "leftmost_longest",
		DefaultMax:    100,
	}
}

func TestHandleMatch_DefaultsAppliedAndMatches(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	h := handleMatch(b, met, testConfig(), logger.New("TEST", "error"))

	body := `{"token_ids":[100,101,102]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/match", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp matchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].PhraseID != 300 {
		t.Errorf("expected single match on phrase_id 300 (leftmost_longest), got %+v", resp.Matches)
	}
	if met.RequestsTotal.Load() != 1 || met.RequestsMatched.Load() != 1 {
		t.Errorf("expected total=1 matched=1, got total=%d matched=%d", met.RequestsTotal.Load(), met.RequestsMatched.Load())
	}
}

func TestHandleMatch_EmptyInputCountsAsEmpty(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	h := handleMatch(b, met, testConfig(), logger.New("TEST", "error"))

	req := httptest.NewRequest(http.MethodPost, "/v1/match", strings.NewReader(`{"token_ids":[]}`))
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if met.RequestsEmpty.Load() != 1 {
		t.Errorf("expected empty=1, got %d", met.RequestsEmpty.Load())
	}
}

func TestHandleMatch_RejectsNonPost(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	h := handleMatch(b, met, testConfig(), logger.New("TEST", "error"))

	req := httptest.NewRequest(http.MethodGet, "/v1/match", nil)
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
	if met.ErrorsBadRequest.Load() != 1 {
		t.Errorf("expected bad-request error counted, got %d", met.ErrorsBadRequest.Load())
	}
}

func TestHandleMatch_MalformedJSONBody(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	h := handleMatch(b, met, testConfig(), logger.New("TEST", "error"))

	req := httptest.NewRequest(http.MethodPost, "/v1/match", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
	var errResp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestHandleMatch_UnknownPolicyIsBadRequest(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	h := handleMatch(b, met, testConfig(), logger.New("TEST", "error"))

	req := httptest.NewRequest(http.MethodPost, "/v1/match", strings.NewReader(`{"token_ids":[100,101],"policy":"nonexistent"}`))
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestHandleMatch_DefaultMaxAndPolicyFromConfig(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	cfg := &config.Config{DefaultPolicy: "leftmost_first", DefaultMax: 1}
	h := handleMatch(b, met, cfg, logger.New("TEST", "error"))

	// Without an explicit policy/max, the handler should fall back to cfg's.
	req := httptest.NewRequest(http.MethodPost, "/v1/match", strings.NewReader(`{"token_ids":[100,101,102]}`))
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp matchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Matches) != 1 {
		t.Errorf("expected exactly one match under default max=1, got %d", len(resp.Matches))
	}
}

func TestHandleStats_ReturnsMatcherAndServiceSections(t *testing.T) {
	b := testBinding(t)
	met := metrics.New()
	h := handleStats(b, met)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var out struct {
		Matcher map[string]interface{} `json:"matcher"`
		Service map[string]interface{} `json:"service"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode stats response: %v", err)
	}
	if out.Matcher == nil || out.Service == nil {
		t.Errorf("expected both matcher and service sections, got %+v", out)
	}
}

func TestHandleHealthz_OKWhenLoaded(t *testing.T) {
	b := testBinding(t)
	h := handleHealthz(b)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestHandleHealthz_ServiceUnavailableWhenNilMatcher(t *testing.T) {
	b := hostbind.New(nil)
	h := handleHealthz(b)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}

func TestPrintBanner_ContainsExpectedFields(t *testing.T) {
	cfg := &config.Config{
		BindAddress:     "127.0.0.1",
		Port:            8070,
		ArtifactDir:     "./artifacts",
		DefaultPolicy:   "leftmost_longest",
		DefaultMax:      100,
		UseMmapPayloads: true,
	}

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	printBanner(cfg)

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r) //nolint:errcheck // test-only pipe read

	out := buf.String()
	for _, want := range []string{"127.0.0.1", "8070", "./artifacts", "leftmost_longest", "100", "true"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in banner output, got:\n%s", want, out)
		}
	}
}
