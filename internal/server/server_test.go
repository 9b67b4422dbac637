package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/kudoman/internal/store"
)

func newTestRouter(t *testing.T, rows string) (*Router, string) {
	t.Helper()
	dir := t.TempDir()
	storePath := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(storePath, []byte(rows), 0o644); err != nil {
		t.Fatalf("write store: %v", err)
	}
	chartPath := filepath.Join(dir, "out.png")
	return NewRouter(store.New(storePath, 2), chartPath), chartPath
}

func TestStatusEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "Time,Kudos\n1000.00,10\n1060.00,25\n")
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		PID         int      `json:"pid"`
		Samples     int      `json:"samples"`
		LatestKudos *int64   `json:"latest_kudos"`
		LatestTime  *float64 `json:"latest_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", body.PID, os.Getpid())
	}
	if body.Samples != 2 {
		t.Fatalf("samples = %d, want 2", body.Samples)
	}
	if body.LatestKudos == nil || *body.LatestKudos != 25 {
		t.Fatalf("latest kudos = %v, want 25", body.LatestKudos)
	}
}

func TestStatusEmptyStore(t *testing.T) {
	r, _ := newTestRouter(t, "Time,Kudos\n")
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["samples"].(float64) != 0 {
		t.Fatalf("samples = %v, want 0", body["samples"])
	}
	if _, present := body["latest_kudos"]; present {
		t.Fatalf("latest_kudos should be omitted for an empty store")
	}
}

func TestChartNotRenderedYet(t *testing.T) {
	r, _ := newTestRouter(t, "Time,Kudos\n")
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chart")
	if err != nil {
		t.Fatalf("GET /chart: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChartServesFile(t *testing.T) {
	r, chartPath := newTestRouter(t, "Time,Kudos\n")
	if err := os.WriteFile(chartPath, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write chart: %v", err)
	}
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chart")
	if err != nil {
		t.Fatalf("GET /chart: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "Time,Kudos\n")
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
