package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"altitude-recorder/internal/export"
	"altitude-recorder/internal/location"
	"altitude-recorder/internal/recorder"
	"altitude-recorder/internal/repository"
	"altitude-recorder/internal/share"

	"github.com/tidwall/gjson"
)

type testServer struct {
	srv       *httptest.Server
	repo      *repository.TrackRepository
	exportDir string
}

func newTestServer(t *testing.T, uploader share.Uploader) *testServer {
	t.Helper()
	db, err := repository.Open("sqlite", filepath.Join(t.TempDir(), "track.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	repo := repository.NewTrackRepository(db, nil)
	ctrl := recorder.NewController(context.Background(), repo)
	feed := location.NewFeed(func(f location.Fix) { ctrl.OnFix(context.Background(), f) })
	exportDir := t.TempDir()
	sharer := share.NewSharer(exportDir, uploader, func() time.Time { return time.Unix(1717236000, 0) })

	mux := http.NewServeMux()
	NewTrackHandler(ctrl, feed, export.NewExporter(repo), sharer).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, repo: repo, exportDir: exportDir}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b), resp.Header
}

func TestRecordAndExportFlow(t *testing.T) {
	s := newTestServer(t, nil)

	code, body, _ := s.do(t, http.MethodPost, "/api/recording", "")
	if code != http.StatusOK || !gjson.Get(body, "recording").Bool() {
		t.Fatalf("toggle: %d %s", code, body)
	}
	if got := gjson.Get(body, "affordances.record_label").String(); got != "Stop" {
		t.Fatalf("record_label=%q", got)
	}

	fixes := []string{
		`{"latitude":1.0,"longitude":1.0,"altitude":10}`,
		`{"latitude":1.0,"longitude":1.0,"altitude":10}`,
		`{"latitude":2.0,"longitude":2.0,"altitude":20}`,
		`{"latitude":2.0,"longitude":2.0,"altitude":20}`,
	}
	for _, f := range fixes {
		if code, body, _ := s.do(t, http.MethodPost, "/api/fix", f); code != http.StatusOK {
			t.Fatalf("fix: %d %s", code, body)
		}
	}

	code, body, _ = s.do(t, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if got := gjson.Get(body, "captured").Int(); got != 3 {
		t.Fatalf("captured=%d", got)
	}
	if gjson.Get(body, "affordances.export_enabled").Bool() {
		t.Fatalf("export enabled while recording")
	}
	if got := gjson.Get(body, "readout").String(); !strings.HasPrefix(got, "Altitude at 2.000000, 2.000000") {
		t.Fatalf("readout=%q", got)
	}

	_, body, _ = s.do(t, http.MethodGet, "/api/markers", "")
	if got := gjson.Get(body, "#").Int(); got != 4 {
		t.Fatalf("markers=%d", got)
	}

	s.do(t, http.MethodPost, "/api/recording", "")

	code, body, hdr := s.do(t, http.MethodGet, "/api/export", "")
	if code != http.StatusOK {
		t.Fatalf("export: %d %s", code, body)
	}
	if got := hdr.Get("Content-Type"); got != share.ContentType {
		t.Fatalf("content-type=%q", got)
	}
	if got := hdr.Get("Content-Disposition"); !strings.Contains(got, "altitude-recorder-1717236000.geojson") {
		t.Fatalf("disposition=%q", got)
	}
	feats := gjson.Get(body, "features").Array()
	if len(feats) != 3 {
		t.Fatalf("features=%d", len(feats))
	}
	wantAlt := []float64{10, 10, 20}
	for i, f := range feats {
		if got := f.Get("properties.altitude").Float(); got != wantAlt[i] {
			t.Fatalf("[%d] altitude=%v", i, got)
		}
	}
	// The handler removes the file after the response is written.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := os.ReadDir(s.exportDir)
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("export file left behind: %d entries", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCaptureWithoutFix(t *testing.T) {
	s := newTestServer(t, nil)

	code, _, _ := s.do(t, http.MethodPost, "/api/capture", "")
	if code != http.StatusConflict {
		t.Fatalf("code=%d", code)
	}

	s.do(t, http.MethodPost, "/api/fix", `{"latitude":46.5,"longitude":7.9,"altitude":3000}`)
	code, body, _ := s.do(t, http.MethodPost, "/api/capture", "")
	if code != http.StatusOK {
		t.Fatalf("capture: %d %s", code, body)
	}
	if got := gjson.Get(body, "captured").Int(); got != 1 {
		t.Fatalf("captured=%d", got)
	}
	if got := gjson.Get(body, "affordances.count_label").String(); got != "1 Locations captured" {
		t.Fatalf("count_label=%q", got)
	}
}

func TestReset(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/fix", `{"latitude":46.5,"longitude":7.9,"altitude":3000}`)
	s.do(t, http.MethodPost, "/api/capture", "")
	s.do(t, http.MethodPost, "/api/capture", "")

	code, body, _ := s.do(t, http.MethodPost, "/api/reset", "")
	if code != http.StatusOK {
		t.Fatalf("reset: %d", code)
	}
	if gjson.Get(body, "captured").Int() != 0 || gjson.Get(body, "affordances.reset_enabled").Bool() {
		t.Fatalf("body=%s", body)
	}
	n, err := s.repo.Count(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("stored=%d err=%v", n, err)
	}
}

func TestFixValidation(t *testing.T) {
	s := newTestServer(t, nil)
	for _, body := range []string{
		`nope`,
		`{"altitude":10}`,
		`{"latitude":95,"longitude":0}`,
	} {
		if code, _, _ := s.do(t, http.MethodPost, "/api/fix", body); code != http.StatusBadRequest {
			t.Fatalf("%s: code=%d", body, code)
		}
	}

	_, body, _ := s.do(t, http.MethodPost, "/api/fix", `{"latitude":95,"longitude":0}`)
	if got := gjson.Get(body, "error").String(); got != "invalid fix" {
		t.Fatalf("error=%q", got)
	}
}

func TestPostRoutesShareResponseShape(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/fix", `{"latitude":46.5,"longitude":7.9,"altitude":3000}`)

	for _, path := range []string{"/api/recording", "/api/fix", "/api/recording", "/api/capture", "/api/reset"} {
		body := ""
		if path == "/api/fix" {
			body = `{"latitude":46.5,"longitude":7.9,"altitude":3000}`
		}
		code, resp, _ := s.do(t, http.MethodPost, path, body)
		if code != http.StatusOK {
			t.Fatalf("%s: code=%d %s", path, code, resp)
		}
		for _, key := range []string{"recording", "captured", "affordances.record_label"} {
			if !gjson.Get(resp, key).Exists() {
				t.Fatalf("%s: missing %q in %s", path, key, resp)
			}
		}
		if gjson.Get(resp, "current").Exists() {
			t.Fatalf("%s: unexpected full state %s", path, resp)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)
	cases := map[string]string{
		"/api/fix":       http.MethodGet,
		"/api/recording": http.MethodGet,
		"/api/capture":   http.MethodGet,
		"/api/reset":     http.MethodGet,
		"/api/export":    http.MethodPost,
		"/api/status":    http.MethodPost,
		"/api/markers":   http.MethodDelete,
	}
	for path, method := range cases {
		if code, _, _ := s.do(t, method, path, ""); code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: code=%d", method, path, code)
		}
	}
}

type stubUploader struct {
	data []byte
	err  error
}

func (u *stubUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.data = data
	return "https://example.invalid/" + name, nil
}

func TestExportUploaded(t *testing.T) {
	up := &stubUploader{}
	s := newTestServer(t, up)
	s.do(t, http.MethodPost, "/api/fix", `{"latitude":46.5,"longitude":7.9,"altitude":3000}`)
	s.do(t, http.MethodPost, "/api/capture", "")

	code, body, _ := s.do(t, http.MethodGet, "/api/export", "")
	if code != http.StatusOK {
		t.Fatalf("export: %d %s", code, body)
	}
	if got := gjson.Get(body, "url").String(); got != "https://example.invalid/altitude-recorder-1717236000.geojson" {
		t.Fatalf("url=%q", got)
	}
	if got := gjson.GetBytes(up.data, "features.#").Int(); got != 1 {
		t.Fatalf("uploaded features=%d", got)
	}
}

func TestExportShareFailure(t *testing.T) {
	s := newTestServer(t, &stubUploader{err: errors.New("offline")})
	code, body, _ := s.do(t, http.MethodGet, "/api/export", "")
	if code != http.StatusInternalServerError {
		t.Fatalf("code=%d", code)
	}
	if bytes.Contains([]byte(body), []byte("offline")) {
		t.Fatalf("internal error leaked: %s", body)
	}
}
