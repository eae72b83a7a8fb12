package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/dataloom-agent/internal/agent"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
)

type fakeAnalyzer struct {
	got  agent.Request
	seen map[string]string
	out  any
	err  error
	wait time.Duration
}

func (f *fakeAnalyzer) Run(ctx context.Context, req agent.Request) (any, error) {
	f.got = req
	f.seen = map[string]string{}
	for name, path := range req.Files {
		b, _ := os.ReadFile(path)
		f.seen[name] = string(b)
	}
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func newTestServer(a Analyzer, cfg Config) http.Handler {
	gin.SetMode(gin.TestMode)
	return New(a, cfg).Handler()
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func post(t *testing.T, h http.Handler, path string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRootAndHealth(t *testing.T) {
	h := newTestServer(&fakeAnalyzer{}, Config{Version: "1.2.3"})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status=%d", w.Code)
	}
	var root map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &root); err != nil {
		t.Fatal(err)
	}
	if root["version"] != "1.2.3" || root["endpoints"].(map[string]any)["analysis"] != "/api/" {
		t.Fatalf("root body: %v", root)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestAnalyzeStagesFilesAndReturnsJSON(t *testing.T) {
	fa := &fakeAnalyzer{out: []any{1, "Titanic", 0.485}}
	h := newTestServer(fa, Config{})
	for _, path := range []string{"/api/", "/api"} {
		w := post(t, h, path, map[string]string{
			"questions.txt": "1. How many?",
			"data.csv":      "a,b\n1,2\n",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, w.Code, w.Body.String())
		}
		if strings.TrimSpace(w.Body.String()) != `[1,"Titanic",0.485]` {
			t.Fatalf("body: %s", w.Body.String())
		}
		if fa.got.Questions != "1. How many?" {
			t.Fatalf("questions: %q", fa.got.Questions)
		}
		if fa.seen["data.csv"] != "a,b\n1,2\n" || len(fa.seen) != 1 {
			t.Fatalf("staged files: %v", fa.seen)
		}
	}
	for _, p := range fa.got.Files {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("workspace file %s not cleaned up", p)
		}
	}
}

func TestAnalyzeAcceptsOneFieldPerFile(t *testing.T) {
	var logs bytes.Buffer
	logger.Use(&logs, false)
	t.Cleanup(func() { logger.Use(io.Discard, false) })

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range []struct{ field, name, content string }{
		{"questions.txt", "questions.txt", "1. Total sales?"},
		{"data.csv", "data.csv", "a,b\n1,2\n"},
		{"notes", "notes.md", "# Notes"},
	} {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	fa := &fakeAnalyzer{out: []any{3}}
	h := newTestServer(fa, Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if fa.got.Questions != "1. Total sales?" {
		t.Fatalf("questions: %q", fa.got.Questions)
	}
	if fa.seen["data.csv"] != "a,b\n1,2\n" || fa.seen["notes.md"] != "# Notes" || len(fa.seen) != 2 {
		t.Fatalf("staged files: %v", fa.seen)
	}
	out := logs.String()
	if !strings.Contains(out, `"msg":"analysis.received"`) || !strings.Contains(out, "data.csv (data, 8 bytes)") {
		t.Fatalf("received log missing staged files:\n%s", out)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	cases := []struct {
		name   string
		an     *fakeAnalyzer
		cfg    Config
		files  map[string]string
		status int
		detail string
	}{
		{"missing questions", &fakeAnalyzer{}, Config{}, map[string]string{"data.csv": "a\n1\n"}, http.StatusBadRequest, "questions.txt file is required"},
		{"pipeline failure", &fakeAnalyzer{err: errors.New("create plan: boom")}, Config{}, map[string]string{"questions.txt": "1. x"}, http.StatusInternalServerError, "Analysis failed: create plan: boom"},
		{"timeout", &fakeAnalyzer{wait: time.Second}, Config{RequestTimeout: 20 * time.Millisecond}, map[string]string{"questions.txt": "1. x"}, http.StatusGatewayTimeout, "timed out"},
		{"too large", &fakeAnalyzer{}, Config{MaxUploadBytes: 64}, map[string]string{"questions.txt": strings.Repeat("q", 500)}, http.StatusRequestEntityTooLarge, "upload exceeds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := post(t, newTestServer(tc.an, tc.cfg), "/api/", tc.files)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.Contains(body["detail"], tc.detail) {
				t.Fatalf("detail=%q want %q", body["detail"], tc.detail)
			}
		})
	}
}

func TestAnalyzeRejectsNonMultipart(t *testing.T) {
	h := newTestServer(&fakeAnalyzer{}, Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/", strings.NewReader(`{"q":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestCORSPreflightAndRequestID(t *testing.T) {
	h := newTestServer(&fakeAnalyzer{}, Config{})
	req := httptest.NewRequest(http.MethodOptions, "/api/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
	if w.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("request id not echoed: %q", w.Header().Get(requestIDHeader))
	}
}

type panicAnalyzer struct{}

func (panicAnalyzer) Run(context.Context, agent.Request) (any, error) { panic("boom") }

func TestRecoveryReturns500(t *testing.T) {
	w := post(t, newTestServer(panicAnalyzer{}, Config{}), "/api/", map[string]string{"questions.txt": "1. x"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}
