package directory

import "github.com/inventor7/p2p/internal/filemeta"

// PeerSummary is the projection of a peerRecord returned to callers:
// GetPeerInfo results, Login's connected_peers snapshot, and the
// peer_info half of a search result.
type PeerSummary struct {
	PeerID    string `json:"peer_id"`
	Username  string `json:"username"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	IsOnline  bool   `json:"is_online"`
	LastSeen  int64  `json:"last_seen"`
	FileCount int    `json:"file_count"`
}

// FileLocation is one Search result: a file plus the peer serving it
// and the HTTP URL at which it can be fetched directly.
type FileLocation struct {
	FileInfo    filemeta.Metadata `json:"file_info"`
	PeerInfo    PeerSummary       `json:"peer_info"`
	DownloadURL string            `json:"download_url"`
	IsAvailable bool              `json:"is_available"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
	PeerID   string `json:"peer_id" binding:"required"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"required"`
}

type LoginResponse struct {
	Success        bool          `json:"success"`
	Token          string        `json:"token"`
	Message        string        `json:"message"`
	ConnectedPeers []PeerSummary `json:"connected_peers"`
}

type LogoutRequest struct {
	Token  string `json:"token" binding:"required"`
	PeerID string `json:"peer_id"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type IndexRequest struct {
	Token  string              `json:"token" binding:"required"`
	PeerID string              `json:"peer_id"`
	Files  []filemeta.Metadata `json:"files"`
}

type IndexResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	FilesIndexed int    `json:"files_indexed"`
}

type SearchRequest struct {
	Token       string `json:"token" binding:"required"`
	PeerID      string `json:"peer_id"`
	Filename    string `json:"filename"`
	FilePattern string `json:"file_pattern"`
}

type SearchResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Results []FileLocation `json:"results"`
}

type PeerInfoRequest struct {
	Token  string `json:"token" binding:"required"`
	PeerID string `json:"peer_id"`
}

type PeerInfoResponse struct {
	Success bool          `json:"success"`
	Peers   []PeerSummary `json:"peers"`
}

type HeartbeatRequest struct {
	Token     string `json:"token" binding:"required"`
	PeerID    string `json:"peer_id"`
	Timestamp int64  `json:"timestamp"`
}

type HeartbeatResponse struct {
	Success         bool  `json:"success"`
	ServerTimestamp int64 `json:"server_timestamp"`
	ActivePeers     int   `json:"active_peers"`
}
