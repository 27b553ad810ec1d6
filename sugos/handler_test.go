package sugos

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sugos/shield"
	"github.com/hazyhaar/sugos/sugos/internal/archive"
	"github.com/hazyhaar/sugos/sugos/internal/crmtest"
)

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func seededServer(t *testing.T) *crmtest.Server {
	t.Helper()
	srv := crmtest.New()
	t.Cleanup(srv.Close)
	srv.AddOrder("111", "O1", "X")
	srv.AddAttachment("O1", "7", "report.docx", "/uploads/", []byte("docx-bytes"))
	srv.AddLink("O1", "notice", "/docs/n")
	srv.ServeFile("/docs/n", crmtest.File{ContentType: "application/pdf", Body: []byte("%PDF-1.4")})
	return srv
}

func TestHandler_Export(t *testing.T) {
	// WHAT: POST /api/exports streams the zip with the run counters in headers.
	h := newTestService(t, testConfig(t, seededServer(t))).Handler()

	w := serve(h, http.MethodPost, "/api/exports", `{"tenant":"test","identifiers":"111,222"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=sugos_export_test_20240305_143000.zip`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "run-1", w.Header().Get(HeaderRunID))
	assert.Equal(t, "ok", w.Header().Get(HeaderStatus))
	assert.Equal(t, "2", w.Header().Get(HeaderProcessed))
	assert.Equal(t, "0", w.Header().Get(HeaderErrors))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	names, err := archive.List(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"111/111-1.docx", "111/111-2.pdf"}, names)
}

func TestHandler_ExportJSON(t *testing.T) {
	h := newTestService(t, testConfig(t, seededServer(t))).Handler()

	w := serve(h, http.MethodPost, "/api/exports?format=json", `{"tenant":"test","identifiers":"111"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res RunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Processed)
	assert.Empty(t, res.Archive)

	// WHAT: Runs without an archive answer JSON.
	w = serve(h, http.MethodPost, "/api/exports", `{"tenant":"test","identifiers":" , "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"status":"no_identifiers"`)
}

func TestHandler_Errors(t *testing.T) {
	cfg := testConfig(t, seededServer(t))
	cfg.Server.MaxBodyBytes = 100
	h := newTestService(t, cfg).Handler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed", "{", http.StatusBadRequest},
		{"unknown tenant", `{"tenant":"nope","identifiers":"1"}`, http.StatusNotFound},
		{"bad credentials", `{"tenant":"test","identifiers":"1","username":"u","password":"p"}`, http.StatusBadGateway},
		{"too large", `{"tenant":"test","identifiers":"` + strings.Repeat("1,", 100) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(h, http.MethodPost, "/api/exports", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestHandler_LinksAndTenants(t *testing.T) {
	srv := seededServer(t)
	h := newTestService(t, testConfig(t, srv)).Handler()

	w := serve(h, http.MethodPost, "/api/links", `{"tenant":"test","identifiers":"111"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var links LinksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &links))
	assert.Equal(t, 1, links.Count)
	assert.Equal(t, "notice", links.Links[0].Orders[0].Links[0].Name)
	assert.Zero(t, srv.FileCalls())

	w = serve(h, http.MethodGet, "/api/tenants", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"key":"test","display_name":"Test"}]`, w.Body.String())

	w = serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Runs(t *testing.T) {
	cfg := testConfig(t, seededServer(t))
	cfg.HistoryDB = t.TempDir() + "/history.db"
	h := newTestService(t, cfg).Handler()

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/exports", `{"tenant":"test","identifiers":"111"}`).Code)

	w := serve(h, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "run-1", list.Runs[0].RunID)

	w = serve(h, http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"111/111-1.docx"`)

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/runs/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/api/runs?limit=x", "").Code)
}

func TestHandler_RunsDisabled(t *testing.T) {
	h := newTestService(t, testConfig(t, seededServer(t))).Handler()
	w := serve(h, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "history is disabled")
}

func TestHandler_BasicAuth(t *testing.T) {
	hash, err := shield.HashPassword("s3cret")
	require.NoError(t, err)
	cfg := testConfig(t, seededServer(t))
	cfg.Server.Username = "ops"
	cfg.Server.PasswordHash = hash
	h := newTestService(t, cfg).Handler()

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/tenants", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants", nil)
	req.SetBasicAuth("ops", "s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Metrics(t *testing.T) {
	h := newTestService(t, testConfig(t, seededServer(t))).Handler()
	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/exports", `{"tenant":"test","identifiers":"111"}`).Code)

	w := serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `sugos_runs_total{status="ok"} 1`)
	assert.Contains(t, w.Body.String(), `sugos_items_total{kind="attachment",result="ok"} 1`)
}
