package directory

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/inventor7/p2p/internal/filemeta"
)

// registry is the in-memory store backing the Directory Registry. A
// single RWMutex guards the primary map and its two secondary indexes,
// matching the single-lock discipline the specification calls for: any
// iteration that must observe a consistent snapshot (sweep, search,
// peer listing) holds the same lock used for inserts and removals.
type registry struct {
	mu            sync.RWMutex
	peers         map[string]*peerRecord // token -> record
	peerIndex     map[string]string      // peer_id -> token
	usernameIndex map[string]string      // username -> token
}

func newRegistry() *registry {
	return &registry{
		peers:         make(map[string]*peerRecord),
		peerIndex:     make(map[string]string),
		usernameIndex: make(map[string]string),
	}
}

// mintToken returns a 128-bit random hex token. The original system
// derives its token from an MD5 digest of a composite string; only the
// randomness and size are load-bearing (see spec Design Notes), so a
// CSPRNG is used directly instead.
func mintToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// byToken returns the record for a token, without checking is_online.
func (r *registry) byToken(token string) (*peerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[token]
	return p, ok
}

// byUsername returns the record registered under a username, if any.
func (r *registry) byUsername(username string) (*peerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.usernameIndex[username]
	if !ok {
		return nil, false
	}
	p, ok := r.peers[token]
	return p, ok
}

// insert registers a brand-new peer under all three indexes. It fails
// if any of the three keys already exists, preserving the invariant
// that peer_id, username, and token agree one-to-one.
func (r *registry) insert(p *peerRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.Token]; exists {
		return false
	}
	if _, exists := r.peerIndex[p.PeerID]; exists {
		return false
	}
	if _, exists := r.usernameIndex[p.Username]; exists {
		return false
	}

	r.peers[p.Token] = p
	r.peerIndex[p.PeerID] = p.Token
	r.usernameIndex[p.Username] = p.Token
	return true
}

// touchOnline refreshes last_seen for a token under the lock and
// returns the record, but only if it exists and is currently online;
// an unknown or offline token is left untouched so a failed auth
// attempt can never extend a stale record's life.
func (r *registry) touchOnline(token string) (*peerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[token]
	if !ok || !p.IsOnline {
		return nil, false
	}
	p.LastSeen = time.Now()
	return p, true
}

// snapshotOnline returns a copy of every online record except the one
// identified by excludeToken (pass "" to include everyone).
func (r *registry) snapshotOnline(excludeToken string) []PeerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerSummary, 0, len(r.peers))
	for token, p := range r.peers {
		if !p.IsOnline || token == excludeToken {
			continue
		}
		out = append(out, p.summary())
	}
	return out
}

// sweepOnce removes every record whose last_seen predates cutoff,
// cleaning all three indexes in the same critical section, and
// returns the number removed. This is the registry half of the
// periodic sweep task; see Service.Run for the scheduling.
func (r *registry) sweepOnce(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, p := range r.peers {
		if p.LastSeen.Before(cutoff) {
			delete(r.peers, token)
			delete(r.peerIndex, p.PeerID)
			delete(r.usernameIndex, p.Username)
			removed++
		}
	}
	return removed
}

// search iterates every online peer except excludeToken, in map
// iteration order, calling match for each (filename, record) pair. The
// caller-supplied match closure decides relevance; search builds the
// FileLocation list under a single read lock so the result reflects
// one consistent instant, per the specification's snapshot semantics.
func (r *registry) search(excludeToken string, match func(filename string) bool, build func(p *peerRecord, filename string, m filemeta.Metadata) FileLocation) []FileLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []FileLocation
	for token, p := range r.peers {
		if !p.IsOnline || token == excludeToken {
			continue
		}
		for filename, meta := range p.Files {
			if match(filename) {
				results = append(results, build(p, filename, meta))
			}
		}
	}
	return results
}

// replaceFiles atomically swaps a peer's file map. The replacement map
// is built by the caller before the lock is taken, so a partial
// publish is never visible to a concurrent Search.
func (r *registry) replaceFiles(token string, files map[string]filemeta.Metadata) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[token]
	if !ok {
		return 0, false
	}
	p.Files = files
	return len(files), true
}

// stats returns total peers, online peers, and total indexed files,
// for periodic logging.
func (r *registry) stats() (total, online, files int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total = len(r.peers)
	for _, p := range r.peers {
		if p.IsOnline {
			online++
		}
		files += len(p.Files)
	}
	return
}
