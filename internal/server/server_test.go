package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fight5566jay/Explainable-Mortal/internal/aggregator"
	"github.com/fight5566jay/Explainable-Mortal/internal/hub"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.html":       "<html>a</html>",
		"2024/b.html":  "<html>b</html>",
		"a.json.gz":    "gz",
		"notes.txt":    "secret",
		"nested/.keep": "",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(logger)
	agg := aggregator.New(h.Subscribe(), h.Dropped)
	return New(h, agg, root, ":0", logger), root
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListReports(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/reports")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var entries []reportEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if len(entries) != 2 || !names["a.html"] || !names["2024/b.html"] {
		t.Errorf("expected a.html and 2024/b.html, got %+v", entries)
	}
}

func TestServeReport(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		target string
		code   int
		body   string
	}{
		{"/reports/a.html", http.StatusOK, "<html>a</html>"},
		{"/reports/2024/b.html", http.StatusOK, "<html>b</html>"},
		{"/reports/notes.txt", http.StatusNotFound, ""},
		{"/reports/a.json.gz", http.StatusNotFound, ""},
		{"/reports/missing.html", http.StatusNotFound, ""},
		{"/reports/../../etc/passwd.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := get(t, s, tt.target)
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, rec.Code)
			continue
		}
		if tt.body != "" && !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: unexpected body %q", tt.target, rec.Body.String())
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected healthz response %d %s", rec.Code, rec.Body.String())
	}

	rec = get(t, s, "/api/stats")
	var stats aggregator.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats JSON: %v", err)
	}
}

func TestDashboardPage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/reports") {
		t.Errorf("expected embedded dashboard, got %d", rec.Code)
	}
}
