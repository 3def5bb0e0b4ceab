// Package peerserver implements the Peer Server (PS): the HTTP
// service exposing the operator-facing endpoints (login, upload,
// search, download, logout) backed by a FileManager and an
// AuthManager, and holding the session-scoped peerclient.Session.
package peerserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inventor7/p2p/internal/apierr"
	"github.com/inventor7/p2p/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// PeerInfo is the peer_info payload returned by a successful login.
type PeerInfo struct {
	PeerID          string `json:"peer_id"`
	Username        string `json:"username"`
	LoginTime       string `json:"login_time"`
	SharedDirectory string `json:"shared_directory"`
	FilesAvailable  int    `json:"files_available"`
}

// claims is the bearer token payload. Only peer_id is carried; the
// token's validity is what authenticates, not its contents.
type claims struct {
	PeerID string `json:"peer_id"`
	jwt.RegisteredClaims
}

// AuthManager holds the peer's own credentials (from configuration)
// and at most one active session; a new login invalidates whatever
// token preceded it.
type AuthManager struct {
	cfg          *config.Peer
	logger       *zap.Logger
	passwordHash []byte

	mu        sync.Mutex
	loggedIn  bool
	token     string
	loginTime time.Time
}

// NewAuthManager hashes the configured operator password once at
// construction so authenticate never compares plaintext.
func NewAuthManager(cfg *config.Peer, logger *zap.Logger) (*AuthManager, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("could not hash configured peer password: %w", err)
	}
	return &AuthManager{cfg: cfg, logger: logger, passwordHash: hash}, nil
}

// Authenticate returns a freshly minted bearer token only when
// peerID, username, and password all match the configured values.
func (a *AuthManager) Authenticate(peerID, username, password string) (string, *PeerInfo, error) {
	if peerID != a.cfg.PeerID || username != a.cfg.Username {
		return "", nil, apierr.New(apierr.KindAuth, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return "", nil, apierr.New(apierr.KindAuth, "invalid credentials")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		PeerID: peerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		return "", nil, apierr.Wrap(apierr.KindInternal, "could not sign session token", err)
	}

	a.mu.Lock()
	a.loggedIn = true
	a.token = signed
	a.loginTime = now
	a.mu.Unlock()

	return signed, &PeerInfo{
		PeerID:          peerID,
		Username:        username,
		LoginTime:       now.Format(time.RFC3339),
		SharedDirectory: a.cfg.SharedDirectory,
	}, nil
}

// VerifyToken checks a bearer token against the single active
// session: it must parse, verify, and match the token minted by the
// most recent Authenticate call.
func (a *AuthManager) VerifyToken(token string) error {
	a.mu.Lock()
	loggedIn, current := a.loggedIn, a.token
	a.mu.Unlock()

	if !loggedIn || token != current {
		return apierr.New(apierr.KindAuth, "invalid or expired session token")
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return apierr.New(apierr.KindAuth, "invalid or expired session token")
	}
	return nil
}

// Logout invalidates the single active session.
func (a *AuthManager) Logout() {
	a.mu.Lock()
	a.loggedIn = false
	a.token = ""
	a.mu.Unlock()
}

// IsLoggedIn reports whether a session is currently active, for the
// unauthenticated /health endpoint.
func (a *AuthManager) IsLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}
