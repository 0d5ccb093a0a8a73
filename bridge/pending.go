package bridge

import (
	"sync"
	"time"

	"github.com/glimte/proxybridge/contracts"
)

// pendingRequest is an HTTP exchange forwarded to the peer and not yet answered
type pendingRequest struct {
	id        uint64
	request   *contracts.ProxiedRequest
	createdAt time.Time
	// replies receives at most one reply; whoever takes the entry from the table owns delivery
	replies chan *contracts.Reply
}

func newPendingRequest(req *contracts.ProxiedRequest) *pendingRequest {
	return &pendingRequest{
		id:        req.ReqID,
		request:   req,
		createdAt: time.Now(),
		replies:   make(chan *contracts.Reply, 1),
	}
}

// pendingTable maps request ids to waiting exchanges
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*pendingRequest)}
}

func (t *pendingTable) put(entry *pendingRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[entry.id]; exists {
		return ErrDuplicateRequest
	}
	t.entries[entry.id] = entry
	return nil
}

// take removes and returns the entry for id, or nil if there is none
func (t *pendingTable) take(id uint64) *pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[id]
	if !exists {
		return nil
	}
	delete(t.entries, id)
	return entry
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
