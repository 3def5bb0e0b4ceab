// Package peerclient implements the Peer Client (PC): the component
// that owns a peer's single logical connection to the directory and
// drives every outbound interaction with it and with other peers.
package peerclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inventor7/p2p/internal/apierr"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/directory"
	"github.com/inventor7/p2p/internal/dirclient"
	"github.com/inventor7/p2p/internal/filemeta"
	"go.uber.org/zap"
)

const downloadTimeout = 30 * time.Second
const downloadChunkSize = 8192

// Session is PC. It is the only component permitted to hold the
// directory session token; PS obtains search/index results through a
// Session, never by calling the directory directly.
type Session struct {
	cfg    *config.Peer
	logger *zap.Logger
	dir    *dirclient.Client
	http   *http.Client

	mu         sync.RWMutex
	token      string
	knownPeers map[string]directory.PeerSummary

	stopOnce atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// New builds a Session bound to the directory at cfg.ServerURL. It
// does not connect; call ConnectToServer to log in.
func New(cfg *config.Peer, logger *zap.Logger) *Session {
	return &Session{
		cfg:        cfg,
		logger:     logger,
		dir:        dirclient.New(cfg.ServerURL, 10*time.Second),
		http:       &http.Client{Timeout: downloadTimeout},
		knownPeers: make(map[string]directory.PeerSummary),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ConnectToServer logs in with the peer's configured credentials,
// populates known_peers, and starts the background heartbeat task.
func (s *Session) ConnectToServer(ctx context.Context) error {
	resp, err := s.dir.Login(ctx, directory.LoginRequest{
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		PeerID:   s.cfg.PeerID,
		Host:     s.cfg.Host,
		Port:     s.cfg.RESTPort,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = resp.Token
	s.knownPeers = make(map[string]directory.PeerSummary, len(resp.ConnectedPeers))
	for _, p := range resp.ConnectedPeers {
		s.knownPeers[p.PeerID] = p
	}
	s.mu.Unlock()

	s.logger.Info("connected to directory",
		zap.String("peer_id", s.cfg.PeerID),
		zap.Int("known_peers", len(resp.ConnectedPeers)))

	go s.runHeartbeat()
	return nil
}

// ConnectToFriend is a pure reachability probe against the configured
// friend endpoints, tried in order. It never substitutes for D: a
// successful probe only means that friend is alive, and does not
// establish a session or change routing.
func (s *Session) ConnectToFriend(ctx context.Context) (string, bool) {
	for _, friend := range []string{s.cfg.PrimaryFriend, s.cfg.BackupFriend} {
		if friend == "" {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ConnectionTimeoutSeconds)*time.Second)
		client := dirclient.New(friend, time.Duration(s.cfg.ConnectionTimeoutSeconds)*time.Second)
		resp, err := client.Heartbeat(probeCtx, directory.HeartbeatRequest{
			Token:     "",
			PeerID:    s.cfg.PeerID,
			Timestamp: time.Now().Unix(),
		})
		cancel()

		// A friend that answers at all — even to reject the token-less
		// probe with an error status (a directory answers 400) — is alive. Only a transport-level failure
		// (dirclient wraps dial/connect errors as KindUnavailable) means
		// the friend could not be reached.
		if err == nil && resp.Success {
			s.logger.Info("friend peer reachable", zap.String("friend", friend))
			return friend, true
		}
		if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.KindUnavailable {
			s.logger.Info("friend peer reachable", zap.String("friend", friend))
			return friend, true
		}
		s.logger.Warn("friend peer unreachable", zap.String("friend", friend), zap.Error(err))
	}
	return "", false
}

// IndexFiles forwards the current local catalog to the directory's
// Index operation.
func (s *Session) IndexFiles(ctx context.Context, files []filemeta.Metadata) (int, error) {
	resp, err := s.dir.Index(ctx, directory.IndexRequest{
		Token:  s.currentToken(),
		PeerID: s.cfg.PeerID,
		Files:  files,
	})
	if err != nil {
		return 0, err
	}
	return resp.FilesIndexed, nil
}

// SearchFiles forwards a search to the directory and returns results
// verbatim; PS re-projects the download_url for its own REST surface.
func (s *Session) SearchFiles(ctx context.Context, name, pattern string) ([]directory.FileLocation, error) {
	resp, err := s.dir.Search(ctx, directory.SearchRequest{
		Token:       s.currentToken(),
		PeerID:      s.cfg.PeerID,
		Filename:    name,
		FilePattern: pattern,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// DownloadFile streams result.DownloadURL to savePath in fixed-size
// chunks. Any non-2xx status or truncated transfer is a failure; a
// partial file on disk after an error is acceptable, but the caller
// must see the returned error.
func (s *Session) DownloadFile(ctx context.Context, result directory.FileLocation, savePath string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not build download request", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.KindUnavailable, "peer unreachable for download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.New(apierr.KindUnavailable, fmt.Sprintf("peer returned status %d for download", resp.StatusCode))
	}

	out, err := os.Create(savePath)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not create destination file", err)
	}
	defer out.Close()

	buf := make([]byte, downloadChunkSize)
	written, err := io.CopyBuffer(out, resp.Body, buf)
	if err != nil {
		return apierr.Wrap(apierr.KindUnavailable, "transfer truncated", err)
	}
	if result.FileInfo.Size != 0 && written != result.FileInfo.Size {
		return apierr.New(apierr.KindUnavailable, "transfer truncated: size mismatch")
	}
	return nil
}

// runHeartbeat is the background task started by ConnectToServer. A
// single missed heartbeat is logged and does not tear down the
// session; only Disconnect or process shutdown ends it.
func (s *Session) runHeartbeat() {
	defer close(s.done)
	ticker := time.NewTicker(time.Duration(s.cfg.HeartbeatIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ConnectionTimeoutSeconds)*time.Second)
			resp, err := s.dir.Heartbeat(ctx, directory.HeartbeatRequest{
				Token:     s.currentToken(),
				PeerID:    s.cfg.PeerID,
				Timestamp: time.Now().Unix(),
			})
			cancel()
			if err != nil {
				s.logger.Warn("heartbeat failed, continuing", zap.Error(err))
				continue
			}
			s.logger.Debug("heartbeat ok", zap.Int("active_peers", resp.ActivePeers))
		}
	}
}

// Disconnect logs out, stops the heartbeat task, and clears caches.
func (s *Session) Disconnect(ctx context.Context) error {
	token := s.currentToken()
	if token == "" {
		return nil
	}

	if s.stopOnce.CompareAndSwap(false, true) {
		close(s.stop)
		<-s.done
	}

	_, err := s.dir.Logout(ctx, directory.LogoutRequest{Token: token, PeerID: s.cfg.PeerID})

	s.mu.Lock()
	s.token = ""
	s.knownPeers = make(map[string]directory.PeerSummary)
	s.mu.Unlock()

	return err
}

func (s *Session) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// KnownPeers returns a copy of the peer cache, refreshed on Login and
// on GetPeerInfo.
func (s *Session) KnownPeers() map[string]directory.PeerSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]directory.PeerSummary, len(s.knownPeers))
	for k, v := range s.knownPeers {
		out[k] = v
	}
	return out
}

// GetPeerInfo refreshes the known-peers cache from the directory.
func (s *Session) GetPeerInfo(ctx context.Context) ([]directory.PeerSummary, error) {
	resp, err := s.dir.GetPeerInfo(ctx, directory.PeerInfoRequest{
		Token:  s.currentToken(),
		PeerID: s.cfg.PeerID,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.knownPeers = make(map[string]directory.PeerSummary, len(resp.Peers))
	for _, p := range resp.Peers {
		s.knownPeers[p.PeerID] = p
	}
	s.mu.Unlock()

	return resp.Peers, nil
}
