package directory

import (
	"context"
	"testing"
	"time"

	"github.com/inventor7/p2p/internal/apierr"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/filemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Directory{
		CleanupIntervalSeconds: 300,
		PeerTimeoutSeconds:     60,
		EnableAuth:             true,
		MaxLoginAttempts:       3,
	}
	return NewService(cfg, zap.NewNop())
}

func loginAlice(t *testing.T, svc *Service, host string) *LoginResponse {
	t.Helper()
	resp, err := svc.Login(context.Background(), LoginRequest{
		Username: "alice",
		Password: "correct-horse",
		PeerID:   "peer-alice",
		Host:     host,
		Port:     9001,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	return resp
}

func TestLogin_MintsTokenAndIndexesAgree(t *testing.T) {
	svc := newTestService(t)
	resp := loginAlice(t, svc, "10.0.0.1")
	require.NotEmpty(t, resp.Token)

	rec, ok := svc.reg.byToken(resp.Token)
	require.True(t, ok)
	assert.Equal(t, "peer-alice", rec.PeerID)

	byUser, ok := svc.reg.byUsername("alice")
	require.True(t, ok)
	assert.Equal(t, resp.Token, byUser.Token)
}

func TestLogin_ConflictOnDifferentHost(t *testing.T) {
	svc := newTestService(t)
	loginAlice(t, svc, "10.0.0.1")

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "alice",
		Password: "correct-horse",
		PeerID:   "peer-alice-2",
		Host:     "10.0.0.2",
		Port:     9002,
	})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConflict, apiErr.Kind)
}

func TestLogin_ReconnectReusesToken(t *testing.T) {
	svc := newTestService(t)
	first := loginAlice(t, svc, "10.0.0.1")

	logoutResp, err := svc.Logout(context.Background(), LogoutRequest{Token: first.Token})
	require.NoError(t, err)
	assert.True(t, logoutResp.Success)

	second := loginAlice(t, svc, "10.0.0.1")
	assert.Equal(t, first.Token, second.Token)

	rec, ok := svc.reg.byToken(second.Token)
	require.True(t, ok)
	assert.True(t, rec.IsOnline)
}

func TestLogin_RateLimitedAfterTooManyFailures(t *testing.T) {
	svc := newTestService(t)
	loginAlice(t, svc, "10.0.0.1")

	for i := 0; i < 4; i++ {
		_, err := svc.Login(context.Background(), LoginRequest{
			Username: "alice",
			Password: "wrong-password",
			PeerID:   "peer-alice",
			Host:     "10.0.0.1",
			Port:     9001,
		})
		require.Error(t, err)
	}

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "alice",
		Password: "correct-horse",
		PeerID:   "peer-alice",
		Host:     "10.0.0.1",
		Port:     9001,
	})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, apiErr.Kind)
}

func TestIndexReplacesFilesAtomically(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")

	_, err := svc.Index(context.Background(), IndexRequest{
		Token: alice.Token,
		Files: []filemeta.Metadata{{Filename: "a.txt", Size: 1}, {Filename: "b.txt", Size: 2}},
	})
	require.NoError(t, err)

	resp, err := svc.Index(context.Background(), IndexRequest{
		Token: alice.Token,
		Files: []filemeta.Metadata{{Filename: "c.txt", Size: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.FilesIndexed)

	rec, ok := svc.reg.byToken(alice.Token)
	require.True(t, ok)
	require.Len(t, rec.Files, 1)
	_, hasC := rec.Files["c.txt"]
	assert.True(t, hasC)
}

func TestIndexDuplicateFilenameLastWriteWins(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")

	resp, err := svc.Index(context.Background(), IndexRequest{
		Token: alice.Token,
		Files: []filemeta.Metadata{
			{Filename: "dup.txt", Size: 1},
			{Filename: "dup.txt", Size: 99},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.FilesIndexed)

	rec, ok := svc.reg.byToken(alice.Token)
	require.True(t, ok)
	assert.Equal(t, int64(99), rec.Files["dup.txt"].Size)
}

func TestSearch_EmptyTermsYieldNoResults(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")
	_, err := svc.Index(context.Background(), IndexRequest{
		Token: alice.Token,
		Files: []filemeta.Metadata{{Filename: "hello.txt", Size: 7}},
	})
	require.NoError(t, err)

	bob, err := svc.Login(context.Background(), LoginRequest{
		Username: "bob", Password: "pw", PeerID: "peer-bob", Host: "10.0.0.2", Port: 9002,
	})
	require.NoError(t, err)

	resp, err := svc.Search(context.Background(), SearchRequest{Token: bob.Token})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_MatchesAcrossPeersExcludingCaller(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")
	_, err := svc.Index(context.Background(), IndexRequest{
		Token: alice.Token,
		Files: []filemeta.Metadata{{Filename: "hello.txt", Size: 7, ContentHash: "5eb63bbbe01eeed093cb22bb8f5acdc3"}},
	})
	require.NoError(t, err)

	bob, err := svc.Login(context.Background(), LoginRequest{
		Username: "bob", Password: "pw", PeerID: "peer-bob", Host: "10.0.0.2", Port: 9002,
	})
	require.NoError(t, err)

	resp, err := svc.Search(context.Background(), SearchRequest{Token: bob.Token, Filename: "hello"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "peer-alice", resp.Results[0].PeerInfo.PeerID)
	assert.Equal(t, int64(7), resp.Results[0].FileInfo.Size)
	assert.Equal(t, "http://10.0.0.1:9001/download/hello.txt", resp.Results[0].DownloadURL)

	// Alice never sees herself in her own search.
	selfResp, err := svc.Search(context.Background(), SearchRequest{Token: alice.Token, Filename: "hello"})
	require.NoError(t, err)
	assert.Empty(t, selfResp.Results)
}

func TestSearch_UnknownTokenFailsAuth(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Search(context.Background(), SearchRequest{Token: "not-a-real-token", Filename: "x"})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAuth, apiErr.Kind)
}

func TestHeartbeat_IsIdempotentAsideFromLastSeen(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")

	var lastSeen time.Time
	for i := 0; i < 3; i++ {
		resp, err := svc.Heartbeat(context.Background(), HeartbeatRequest{Token: alice.Token, Timestamp: time.Now().Unix()})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.ActivePeers)

		rec, ok := svc.reg.byToken(alice.Token)
		require.True(t, ok)
		assert.True(t, rec.LastSeen.After(lastSeen) || rec.LastSeen.Equal(lastSeen))
		lastSeen = rec.LastSeen
	}
}

func TestSweep_RemovesStaleRecordFromAllIndexes(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")

	rec, ok := svc.reg.byToken(alice.Token)
	require.True(t, ok)
	rec.LastSeen = time.Now().Add(-2 * time.Hour)

	removed := svc.reg.sweepOnce(time.Now().Add(-time.Hour))
	assert.Equal(t, 1, removed)

	_, ok = svc.reg.byToken(alice.Token)
	assert.False(t, ok)
	_, ok = svc.reg.byUsername("alice")
	assert.False(t, ok)
}

func TestSweep_ExcludesStalePeerFromSearchResults(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")
	_, err := svc.Index(context.Background(), IndexRequest{
		Token: alice.Token,
		Files: []filemeta.Metadata{{Filename: "hello.txt", Size: 7}},
	})
	require.NoError(t, err)

	bob, err := svc.Login(context.Background(), LoginRequest{
		Username: "bob", Password: "pw", PeerID: "peer-bob", Host: "10.0.0.2", Port: 9002,
	})
	require.NoError(t, err)

	rec, ok := svc.reg.byToken(alice.Token)
	require.True(t, ok)
	rec.LastSeen = time.Now().Add(-2 * time.Hour)
	svc.reg.sweepOnce(time.Now().Add(-time.Hour))

	resp, err := svc.Search(context.Background(), SearchRequest{Token: bob.Token, Filename: "hello"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	peers, err := svc.GetPeerInfo(context.Background(), PeerInfoRequest{Token: bob.Token})
	require.NoError(t, err)
	for _, p := range peers.Peers {
		assert.NotEqual(t, "peer-alice", p.PeerID)
	}
}

func TestGetPeerInfo_OnlyOnlinePeers(t *testing.T) {
	svc := newTestService(t)
	alice := loginAlice(t, svc, "10.0.0.1")
	_, err := svc.Logout(context.Background(), LogoutRequest{Token: alice.Token})
	require.NoError(t, err)

	bob, err := svc.Login(context.Background(), LoginRequest{
		Username: "bob", Password: "pw", PeerID: "peer-bob", Host: "10.0.0.2", Port: 9002,
	})
	require.NoError(t, err)

	resp, err := svc.GetPeerInfo(context.Background(), PeerInfoRequest{Token: bob.Token})
	require.NoError(t, err)
	for _, p := range resp.Peers {
		assert.NotEqual(t, "peer-alice", p.PeerID)
	}
}
