package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/audit"
	"github.com/oonrumail/emailguard/model"
	"github.com/oonrumail/emailguard/objectstore"
	"github.com/oonrumail/emailguard/orchestrator"
	"github.com/oonrumail/emailguard/testutil"
)

type stubResolver struct {
	txt map[string][]string
}

func (s *stubResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	return s.txt[name], nil
}
func (s *stubResolver) LookupA(_ context.Context, _ string) ([]string, error)     { return nil, nil }
func (s *stubResolver) LookupMX(_ context.Context, _ string) ([]string, error)    { return nil, nil }
func (s *stubResolver) LookupCNAME(_ context.Context, _ string) ([]string, error) { return nil, nil }

const adminPassword = "hunter2"

func newTestServer(t *testing.T) (*httptest.Server, *audit.Service) {
	t.Helper()
	res := &stubResolver{txt: map[string][]string{}}
	orch := orchestrator.New(res, time.Second, 5*time.Second, nil)

	auditSvc := audit.New(testutil.NewFakeCatalog(), testutil.NewFakeObjectStore(),
		"test-secret", objectstore.RecordKey, objectstore.ExportKey, nil)

	sum := sha256.Sum256([]byte(adminPassword))
	h := New(orch, res, auditSvc, AdminCredentials{
		Username:     "admin",
		PasswordHash: hex.EncodeToString(sum[:]),
	}, nil)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, auditSvc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	var body map[string]any
	decodeJSON(t, resp, &body)
	require.Equal(t, "ok", body["status"])
}

func TestAnalyzeQuick_ReturnsNilDKIM(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/analyze/quick", map[string]any{
		"headers": []map[string]string{{"name": "From", "value": "alice@example.com"}},
		"subject": "hello",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.AnalysisResult
	decodeJSON(t, resp, &result)
	require.Nil(t, result.DKIM)
	require.Nil(t, result.ARC)
	require.NotEmpty(t, result.Score.Grade)
}

func TestStorePresignDownload_RoundTrip(t *testing.T) {
	srv, auditSvc := newTestServer(t)

	raw := []byte("From: a@b.com\r\n\r\nbody\r\n")
	resp := postJSON(t, srv.URL+"/api/store", map[string]any{
		"emlBase64": base64.StdEncoding.EncodeToString(raw),
		"metadata":  map[string]string{"fromDomain": "b.com"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored map[string]any
	decodeJSON(t, resp, &stored)
	id := stored["id"].(string)
	require.NotEmpty(t, id)

	token, err := auditSvc.Presign(id, time.Hour)
	require.NoError(t, err)

	dlResp, err := http.Get(srv.URL + "/api/download/" + token)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	require.Equal(t, http.StatusOK, dlResp.StatusCode)
	require.Equal(t, `attachment; filename="`+id+`.eml"`, dlResp.Header.Get("Content-Disposition"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(dlResp.Body)
	require.NoError(t, err)
	require.Equal(t, raw, buf.Bytes())
}

func TestDownload_ExpiredTokenForbidden(t *testing.T) {
	srv, auditSvc := newTestServer(t)

	rec, err := auditSvc.Store(context.Background(), []byte("payload"), nil)
	require.NoError(t, err)

	token, err := auditSvc.Presign(rec.ID, -time.Minute)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/download/" + token)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownload_GarbageTokenForbidden(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/download/not-a-token")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdmin_RequiresBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/admin/records")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Admin Area")
}

func TestAdmin_ListWithValidCredentials(t *testing.T) {
	srv, auditSvc := newTestServer(t)

	_, err := auditSvc.Store(context.Background(), []byte("hello"), map[string]string{"fromDomain": "example.com"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/admin/records", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", adminPassword)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var body map[string]any
	decodeJSON(t, resp, &body)
	require.EqualValues(t, 1, body["total"])
}

func TestAdmin_WrongPasswordRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/admin/records", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExportPrepareAndDownload_OneShot(t *testing.T) {
	srv, auditSvc := newTestServer(t)

	rec, err := auditSvc.Store(context.Background(), []byte("raw eml"), nil)
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/export/prepare", map[string]any{
		"recordId": rec.ID,
		"format":   "eml",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var prepared map[string]string
	decodeJSON(t, resp, &prepared)
	token := prepared["token"]
	require.NotEmpty(t, token)

	dl1, err := http.Get(srv.URL + "/api/export/download/" + token)
	require.NoError(t, err)
	dl1.Body.Close()
	require.Equal(t, http.StatusOK, dl1.StatusCode)

	dl2, err := http.Get(srv.URL + "/api/export/download/" + token)
	require.NoError(t, err)
	dl2.Body.Close()
	require.NotEqual(t, http.StatusOK, dl2.StatusCode)
}

func TestVerifyEndpoint_ParsesSPFAndDMARC(t *testing.T) {
	res := &stubResolver{txt: map[string][]string{
		"example.com":        {"v=spf1 include:_spf.example.com -all"},
		"_dmarc.example.com": {"v=DMARC1; p=reject; pct=100"},
	}}
	orch := orchestrator.New(res, time.Second, 5*time.Second, nil)
	auditSvc := audit.New(testutil.NewFakeCatalog(), testutil.NewFakeObjectStore(),
		"s", objectstore.RecordKey, objectstore.ExportKey, nil)
	h := New(orch, res, auditSvc, AdminCredentials{}, nil)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/verify", map[string]any{"domain": "example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	require.NotNil(t, body["spf"])
	require.NotNil(t, body["dmarc"])
}

func TestStore_RejectsBadBase64(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/store", map[string]any{"emlBase64": "!!not-base64!!"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["error"])
}
