package peerclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/directory"
	"github.com/inventor7/p2p/internal/filemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T, serverURL string) *Session {
	t.Helper()
	cfg := &config.Peer{
		PeerID:                   "peer-x",
		Username:                 "x",
		Password:                 "pw",
		Host:                     "127.0.0.1",
		RESTPort:                 9100,
		ServerURL:                serverURL,
		HeartbeatIntervalSeconds: 30,
		ConnectionTimeoutSeconds: 2,
	}
	return New(cfg, zap.NewNop())
}

func TestDownloadFile_HappyPath(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(want)
	}))
	defer ts.Close()

	session := newTestSession(t, ts.URL)
	dest := filepath.Join(t.TempDir(), "out.bin")

	err := session.DownloadFile(context.Background(), directory.FileLocation{
		DownloadURL: ts.URL + "/download/x",
		FileInfo:    filemeta.Metadata{Size: int64(len(want))},
	}, dest)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDownloadFile_NonOKStatusFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	session := newTestSession(t, ts.URL)
	dest := filepath.Join(t.TempDir(), "out.bin")

	err := session.DownloadFile(context.Background(), directory.FileLocation{
		DownloadURL: ts.URL + "/download/missing",
	}, dest)
	require.Error(t, err)
}

func TestDownloadFile_SizeMismatchFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))
	}))
	defer ts.Close()

	session := newTestSession(t, ts.URL)
	dest := filepath.Join(t.TempDir(), "out.bin")

	err := session.DownloadFile(context.Background(), directory.FileLocation{
		DownloadURL: ts.URL + "/download/x",
		FileInfo:    filemeta.Metadata{Size: 999},
	}, dest)
	require.Error(t, err)
}

func newTestDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := directory.NewService(&config.Directory{
		CleanupIntervalSeconds: 300,
		PeerTimeoutSeconds:     60,
		EnableAuth:             true,
		MaxLoginAttempts:       5,
	}, zap.NewNop())
	engine := gin.New()
	directory.RegisterRoutes(engine, svc)
	return httptest.NewServer(engine)
}

func TestConnectToFriend_ReachableEvenWhenProbeUnauthenticated(t *testing.T) {
	ts := newTestDirectoryServer(t)
	defer ts.Close()

	cfg := &config.Peer{
		PeerID:                   "peer-x",
		PrimaryFriend:            ts.URL,
		ConnectionTimeoutSeconds: 2,
	}
	session := New(cfg, zap.NewNop())
	friend, ok := session.ConnectToFriend(context.Background())
	assert.True(t, ok)
	assert.Equal(t, ts.URL, friend)
}

func TestConnectToFriend_UnreachableEndpointFails(t *testing.T) {
	cfg := &config.Peer{
		PeerID:                   "peer-x",
		PrimaryFriend:            "http://127.0.0.1:1",
		ConnectionTimeoutSeconds: 1,
	}
	session := New(cfg, zap.NewNop())
	_, ok := session.ConnectToFriend(context.Background())
	assert.False(t, ok)
}
