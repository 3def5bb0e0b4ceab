// Package directory implements the Directory Registry (D): the
// session, registry, indexing, search, and liveness subsystem that
// tracks peers and their published file catalogs.
package directory

import (
	"time"

	"github.com/inventor7/p2p/internal/filemeta"
)

// peerRecord is the registry's internal representation of a logical
// peer identity. One record exists per token; the peerID and username
// indexes always agree with it (see Registry invariants).
type peerRecord struct {
	PeerID        string
	Username      string
	Host          string
	Port          int
	Token         string
	PasswordHash  []byte // set on first registration, compared on every subsequent Login
	IsOnline      bool
	LastSeen      time.Time
	Files         map[string]filemeta.Metadata
	LoginAttempts int
	CreatedAt     time.Time
}

// summary projects a peerRecord into the wire-facing PeerSummary shape.
func (p *peerRecord) summary() PeerSummary {
	return PeerSummary{
		PeerID:    p.PeerID,
		Username:  p.Username,
		Host:      p.Host,
		Port:      p.Port,
		IsOnline:  p.IsOnline,
		LastSeen:  p.LastSeen.Unix(),
		FileCount: len(p.Files),
	}
}
