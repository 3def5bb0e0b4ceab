package peerserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *config.Peer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Peer{
		PeerID:          "peer-1",
		Username:        "op",
		Password:        "s3cret",
		SharedDirectory: t.TempDir(),
		MaxFileSize:     1 << 20,
		JWTSecret:       "test-secret",
		Host:            "127.0.0.1",
		RESTPort:        0,
		ServerURL:       "http://127.0.0.1:0",
	}
	logger := zap.NewNop()

	auth, err := NewAuthManager(cfg, logger)
	require.NoError(t, err)
	files, err := NewFileManager(cfg, logger)
	require.NoError(t, err)
	srv, err := New(cfg, logger, auth, files)
	require.NoError(t, err)

	engine := gin.New()
	RegisterRoutes(engine, srv)
	return httptest.NewServer(engine), cfg
}

func TestHealthEndpoint_NoAuthRequired(t *testing.T) {
	ts, cfg := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, cfg.PeerID, body["peer_id"])
	assert.Equal(t, false, body["logged_in"])
}

func doLogin(t *testing.T, ts *httptest.Server, cfg *config.Peer) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"peer_id": cfg.PeerID, "username": cfg.Username, "password": cfg.Password,
	})
	resp, err := http.Post(ts.URL+"/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestLogin_WrongPasswordUnauthorized(t *testing.T) {
	ts, cfg := newTestServer(t)
	defer ts.Close()

	payload, _ := json.Marshal(map[string]string{
		"peer_id": cfg.PeerID, "username": cfg.Username, "password": "wrong",
	})
	resp, err := http.Post(ts.URL+"/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDownloadRequiresBearerToken(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/download/anything.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	ts, cfg := newTestServer(t)
	defer ts.Close()
	token := doLogin(t, ts, cfg)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	want := []byte("the quick brown fox")
	_, err = part.Write(want)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/create", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		Filename   string `json:"filename"`
		Size       int    `json:"size"`
		TotalFiles int    `json:"total_files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "report.txt", created.Filename)
	assert.Equal(t, len(want), created.Size)
	assert.Equal(t, 1, created.TotalFiles)

	// Confirm it landed on disk under shared_root too.
	onDisk, err := os.ReadFile(filepath.Join(cfg.SharedDirectory, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, want, onDisk)

	dlReq, err := http.NewRequest(http.MethodGet, ts.URL+"/download/report.txt", nil)
	require.NoError(t, err)
	dlReq.Header.Set("Authorization", "Bearer "+token)
	dlResp, err := http.DefaultClient.Do(dlReq)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	require.Equal(t, http.StatusOK, dlResp.StatusCode)
	assert.Equal(t, cfg.PeerID, dlResp.Header.Get("X-Peer-ID"))

	got, err := io.ReadAll(dlResp.Body)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUploadEmptyFileRejected(t *testing.T) {
	ts, cfg := newTestServer(t)
	defer ts.Close()
	token := doLogin(t, ts, cfg)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_, err := writer.CreateFormFile("file", "empty.txt")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/create", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchWithoutDirectoryConnectionIsUnavailable(t *testing.T) {
	ts, cfg := newTestServer(t)
	defer ts.Close()
	token := doLogin(t, ts, cfg)

	payload, _ := json.Marshal(map[string]string{"query": "anything"})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/search", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLogoutThenDownloadRejected(t *testing.T) {
	ts, cfg := newTestServer(t)
	defer ts.Close()
	token := doLogin(t, ts, cfg)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dlReq, err := http.NewRequest(http.MethodGet, ts.URL+"/download/report.txt", nil)
	require.NoError(t, err)
	dlReq.Header.Set("Authorization", "Bearer "+token)
	dlResp, err := http.DefaultClient.Do(dlReq)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, dlResp.StatusCode)
}
