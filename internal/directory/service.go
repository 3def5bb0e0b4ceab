package directory

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/inventor7/p2p/internal/apierr"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/filemeta"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service implements the six directory RPC operations described in the
// specification's component design: Login, Logout, Index, Search,
// GetPeerInfo, and Heartbeat, plus the background sweep that expires
// inactive peers.
type Service struct {
	cfg      *config.Directory
	logger   *zap.Logger
	reg      *registry
	stopOnce atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// NewService constructs a Service. The sweep task is not started until
// Run is called (see cmd/directoryd, which wires Run into an fx
// lifecycle hook).
func NewService(cfg *config.Directory, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
		reg:    newRegistry(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Login implements spec section 4.1's Login operation.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	existing, ok := s.reg.byUsername(req.Username)
	if ok {
		if existing.LoginAttempts > s.cfg.MaxLoginAttempts {
			return nil, apierr.New(apierr.KindRateLimited, "too many failed login attempts for this username")
		}

		if s.cfg.EnableAuth && bcrypt.CompareHashAndPassword(existing.PasswordHash, []byte(req.Password)) != nil {
			existing.LoginAttempts++
			return nil, apierr.New(apierr.KindAuth, "invalid credentials")
		}

		if existing.Host != req.Host {
			return nil, apierr.New(apierr.KindConflict, "username is already registered from a different host")
		}

		// Re-login: same username, same host, within peer_timeout or not
		// — refresh and reuse the existing token.
		existing.IsOnline = true
		existing.Port = req.Port
		existing.LastSeen = time.Now()
		existing.LoginAttempts = 0

		s.logger.Info("peer re-logged in",
			zap.String("peer_id", existing.PeerID),
			zap.String("username", existing.Username),
			zap.String("token", existing.Token))

		return &LoginResponse{
			Success:        true,
			Token:          existing.Token,
			Message:        "reconnected",
			ConnectedPeers: s.reg.snapshotOnline(existing.Token),
		}, nil
	}

	token, err := mintToken()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "could not mint session token", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "could not hash password", err)
	}

	record := &peerRecord{
		PeerID:       req.PeerID,
		Username:     req.Username,
		Host:         req.Host,
		Port:         req.Port,
		Token:        token,
		PasswordHash: hash,
		IsOnline:     true,
		LastSeen:     time.Now(),
		Files:        make(map[string]filemeta.Metadata),
		CreatedAt:    time.Now(),
	}

	if !s.reg.insert(record) {
		return nil, apierr.New(apierr.KindConflict, "peer_id, username, or token already registered")
	}

	s.logger.Info("peer logged in",
		zap.String("peer_id", record.PeerID),
		zap.String("username", record.Username),
		zap.String("token", token))

	return &LoginResponse{
		Success:        true,
		Token:          token,
		Message:        "logged in",
		ConnectedPeers: s.reg.snapshotOnline(token),
	}, nil
}

// authenticate resolves a token to its record, refreshing last_seen.
// It is the single entry point every authenticated RPC goes through.
func (s *Service) authenticate(token string) (*peerRecord, error) {
	p, ok := s.reg.touchOnline(token)
	if !ok {
		return nil, apierr.New(apierr.KindAuth, "unknown or expired token")
	}
	return p, nil
}

// Logout implements spec section 4.1's Logout operation.
func (s *Service) Logout(ctx context.Context, req LogoutRequest) (*LogoutResponse, error) {
	p, err := s.authenticate(req.Token)
	if err != nil {
		return nil, err
	}
	p.IsOnline = false
	s.logger.Info("peer logged out", zap.String("peer_id", p.PeerID))
	return &LogoutResponse{Success: true, Message: "logged out"}, nil
}

// Index implements spec section 4.1's Index operation: the peer's
// entire file set is replaced atomically.
func (s *Service) Index(ctx context.Context, req IndexRequest) (*IndexResponse, error) {
	p, err := s.authenticate(req.Token)
	if err != nil {
		return nil, err
	}

	replacement := make(map[string]filemeta.Metadata, len(req.Files))
	for _, f := range req.Files {
		replacement[f.Filename] = f // last write wins within the batch
	}

	count, _ := s.reg.replaceFiles(p.Token, replacement)
	s.logger.Info("peer published catalog", zap.String("peer_id", p.PeerID), zap.Int("files", count))

	return &IndexResponse{Success: true, Message: "indexed", FilesIndexed: count}, nil
}

// Search implements spec section 4.1's Search operation. A match
// requires at least one non-empty term; empty name and empty pattern
// together yield zero results (spec's resolution of Open Question a).
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	caller, err := s.authenticate(req.Token)
	if err != nil {
		return nil, err
	}

	qName := strings.ToLower(req.Filename)
	qPattern := strings.ToLower(req.FilePattern)
	if qName == "" && qPattern == "" {
		return &SearchResponse{Success: true, Message: "no search term supplied", Results: nil}, nil
	}

	match := func(filename string) bool {
		lower := strings.ToLower(filename)
		return (qName != "" && strings.Contains(lower, qName)) ||
			(qPattern != "" && strings.Contains(lower, qPattern))
	}

	build := func(p *peerRecord, filename string, meta filemeta.Metadata) FileLocation {
		summary := p.summary()
		return FileLocation{
			FileInfo:    meta,
			PeerInfo:    summary,
			DownloadURL: downloadURL(p.Host, p.Port, filename),
			IsAvailable: true,
		}
	}

	results := s.reg.search(caller.Token, match, build)
	return &SearchResponse{Success: true, Message: "search complete", Results: results}, nil
}

func downloadURL(host string, port int, filename string) string {
	return "http://" + host + ":" + strconv.Itoa(port) + "/download/" + filename
}

// GetPeerInfo implements spec section 4.1's GetPeerInfo operation.
func (s *Service) GetPeerInfo(ctx context.Context, req PeerInfoRequest) (*PeerInfoResponse, error) {
	if _, err := s.authenticate(req.Token); err != nil {
		return nil, err
	}
	return &PeerInfoResponse{Success: true, Peers: s.reg.snapshotOnline("")}, nil
}

// Heartbeat implements spec section 4.1's Heartbeat operation.
func (s *Service) Heartbeat(ctx context.Context, req HeartbeatRequest) (*HeartbeatResponse, error) {
	if _, err := s.authenticate(req.Token); err != nil {
		return nil, err
	}
	_, online, _ := s.reg.stats()
	return &HeartbeatResponse{
		Success:         true,
		ServerTimestamp: time.Now().Unix(),
		ActivePeers:     online,
	}, nil
}

// Run starts the periodic inactivity sweep and the minute-scale stats
// log, both cancellable via Stop. It blocks until Stop is called or
// ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(time.Duration(s.cfg.CleanupIntervalSeconds) * time.Second)
	statsTicker := time.NewTicker(time.Minute)
	defer sweepTicker.Stop()
	defer statsTicker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-sweepTicker.C:
			cutoff := time.Now().Add(-time.Duration(s.cfg.PeerTimeoutSeconds) * time.Second)
			if removed := s.reg.sweepOnce(cutoff); removed > 0 {
				s.logger.Info("swept inactive peers", zap.Int("removed", removed))
			}
		case <-statsTicker.C:
			total, online, files := s.reg.stats()
			s.logger.Info("directory stats", zap.Int("total_peers", total), zap.Int("active_peers", online), zap.Int("total_files", files))
		}
	}
}

// Stop cancels Run and waits for it to return.
func (s *Service) Stop() {
	if s.stopOnce.CompareAndSwap(false, true) {
		close(s.stop)
	}
	<-s.done
}
