package peerserver

import (
	"context"
	"sync"
	"time"

	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/peerclient"
	"go.uber.org/zap"
)

// Server is PS. It owns the FileManager and AuthManager for the
// lifetime of the process, and a peerclient.Session scoped to the
// login session: built on login, dropped on logout. Session never
// holds a strong back-reference to Server.
type Server struct {
	cfg    *config.Peer
	logger *zap.Logger
	auth   *AuthManager
	files  *FileManager

	mu      sync.Mutex
	session *peerclient.Session
}

// New constructs a Server. Its shared directory is scanned once here
// so /health reports an accurate file count before the first login.
func New(cfg *config.Peer, logger *zap.Logger, auth *AuthManager, files *FileManager) (*Server, error) {
	if _, err := files.Scan(); err != nil {
		logger.Warn("initial scan of shared directory failed", zap.Error(err))
	}
	return &Server{cfg: cfg, logger: logger, auth: auth, files: files}, nil
}

// Login authenticates, rescans the shared directory, opens a
// peerclient.Session to the directory, and publishes the catalog. A
// directory connection failure does not fail the login: the operator
// still gets a valid session and can serve/download locally, just
// without directory-backed search until a later reconnect succeeds.
func (s *Server) Login(ctx context.Context, peerID, username, password string) (string, *PeerInfo, error) {
	token, info, err := s.auth.Authenticate(peerID, username, password)
	if err != nil {
		return "", nil, err
	}

	files, scanErr := s.files.Scan()
	if scanErr != nil {
		s.logger.Warn("scan on login failed", zap.Error(scanErr))
	}
	info.FilesAvailable = len(files)

	session := peerclient.New(s.cfg, s.logger)
	if connErr := session.ConnectToServer(ctx); connErr != nil {
		s.logger.Warn("could not connect to directory on login", zap.Error(connErr))
	} else {
		if _, err := session.IndexFiles(ctx, files); err != nil {
			s.logger.Warn("could not publish catalog on login", zap.Error(err))
		}
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
	}

	return token, info, nil
}

// Logout disconnects the session (if any) and clears the local
// authentication state.
func (s *Server) Logout(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	var err error
	if session != nil {
		disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err = session.Disconnect(disconnectCtx)
	}
	s.auth.Logout()
	return err
}

// Session returns the active peerclient.Session, or nil if PS is not
// currently connected to the directory.
func (s *Server) Session() *peerclient.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// RescanAndRepublish rescans shared_root and, if connected,
// republishes the catalog to the directory. Called after every
// successful upload.
func (s *Server) RescanAndRepublish(ctx context.Context) (int, error) {
	files, err := s.files.Scan()
	if err != nil {
		return 0, err
	}

	session := s.Session()
	if session != nil {
		if _, err := session.IndexFiles(ctx, files); err != nil {
			s.logger.Warn("could not republish catalog", zap.Error(err))
		}
	}
	return len(files), nil
}
