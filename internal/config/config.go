// Package config loads the environment-variable driven configuration
// recognized by both the directory and peer binaries, grouped the way
// the specification's configuration section groups them.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory holds the configuration consumed by cmd/directoryd.
type Directory struct {
	// server
	Host       string
	GRPCPort   int
	RESTPort   int
	MaxWorkers int

	// database (in-memory registry tuning; there is no actual database)
	CleanupIntervalSeconds int
	PeerTimeoutSeconds     int

	// security
	EnableAuth       bool
	TokenExpiry      int // reserved, unused per spec Open Question (b)
	MaxLoginAttempts int

	Logger *zap.Logger
}

// NewDirectory builds a Directory config from the environment, falling
// back to a sensible default for every key that isn't set.
func NewDirectory(logger *zap.Logger) (*Directory, error) {
	return &Directory{
		Host:       getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
		GRPCPort:   getEnvInt("SERVER_GRPC_PORT", 50051),
		RESTPort:   getEnvInt("SERVER_REST_PORT", 8080),
		MaxWorkers: getEnvInt("SERVER_MAX_WORKERS", 10),

		CleanupIntervalSeconds: getEnvInt("CLEANUP_INTERVAL", 300),
		PeerTimeoutSeconds:     getEnvInt("PEER_TIMEOUT", 120),

		EnableAuth:       getEnvBool("ENABLE_AUTH", true),
		TokenExpiry:      getEnvInt("TOKEN_EXPIRY", 3600),
		MaxLoginAttempts: getEnvInt("MAX_LOGIN_ATTEMPTS", 5),

		Logger: logger,
	}, nil
}

// Peer holds the configuration consumed by cmd/peerd.
type Peer struct {
	// peer
	PeerID   string
	Username string
	Password string

	// network
	Host      string
	RESTPort  int
	GRPCPort  int
	ServerURL string

	// files
	SharedDirectory     string
	MaxFileSize         int64
	AllowedExtensions   []string
	ScanIntervalSeconds int

	// peers (friend fallback + heartbeat)
	PrimaryFriend            string
	BackupFriend             string
	HeartbeatIntervalSeconds int
	ConnectionTimeoutSeconds int

	// security (local operator auth token signing)
	JWTSecret string

	Logger *zap.Logger
}

// NewPeer builds a Peer config from the environment.
func NewPeer(logger *zap.Logger) (*Peer, error) {
	peerID := getEnvOrDefault("PEER_ID", "")
	if peerID == "" {
		peerID = "peer-" + uuid.NewString()
	}

	return &Peer{
		PeerID:   peerID,
		Username: getEnvOrDefault("PEER_USERNAME", "anonymous"),
		Password: getEnvOrDefault("PEER_PASSWORD", "change-me"),

		Host:      getEnvOrDefault("PEER_HOST", "127.0.0.1"),
		RESTPort:  getEnvInt("PEER_REST_PORT", 9000),
		GRPCPort:  getEnvInt("PEER_GRPC_PORT", 50052),
		ServerURL: getEnvOrDefault("SERVER_URL", "http://127.0.0.1:8080"),

		SharedDirectory:     getEnvOrDefault("SHARED_DIRECTORY", "./shared"),
		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 50*1024*1024),
		AllowedExtensions:   getEnvList("ALLOWED_EXTENSIONS", nil),
		ScanIntervalSeconds: getEnvInt("SCAN_INTERVAL", 60),

		PrimaryFriend:            getEnvOrDefault("PRIMARY_FRIEND", ""),
		BackupFriend:             getEnvOrDefault("BACKUP_FRIEND", ""),
		HeartbeatIntervalSeconds: getEnvInt("HEARTBEAT_INTERVAL", 30),
		ConnectionTimeoutSeconds: getEnvInt("CONNECTION_TIMEOUT", 10),

		JWTSecret: getEnvOrDefault("JWT_SECRET", "peer-local-insecure-dev-secret"),

		Logger: logger,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnvOrDefault(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v, err := strconv.ParseInt(getEnvOrDefault(key, strconv.FormatInt(defaultValue, 10)), 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnvOrDefault(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvList(key string, defaultValue []string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
