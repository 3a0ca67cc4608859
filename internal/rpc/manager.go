package rpc

import (
	"sync"
)

// ClientManager owns one PeerClient per node identity, created lazily
// and reused, adapted from internal/httpClient/http_client_manager.go.
type ClientManager struct {
	cfg     ClientConfig
	peers   map[string]string // node -> base URL, from static cluster config
	mu      sync.RWMutex
	clients map[string]*PeerClient
}

func NewClientManager(peers map[string]string, cfg ClientConfig) *ClientManager {
	return &ClientManager{
		cfg:     cfg,
		peers:   peers,
		clients: make(map[string]*PeerClient),
	}
}

// Client returns (creating if necessary) the PeerClient for node.
func (m *ClientManager) Client(node string) (*PeerClient, bool) {
	m.mu.RLock()
	c, ok := m.clients[node]
	m.mu.RUnlock()
	if ok {
		return c, true
	}

	baseURL, known := m.peers[node]
	if !known {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[node]; ok {
		return c, true
	}
	c = NewPeerClient(node, baseURL, m.cfg)
	m.clients[node] = c
	return c, true
}

// Reachable reports whether node is known and its breaker isn't open.
// This is the signal pkg/redundancy uses to fill in ReplicaTarget.Reachable.
func (m *ClientManager) Reachable(node string) bool {
	c, ok := m.Client(node)
	return ok && c.Available()
}

// Nodes returns every peer node identity this manager knows about,
// sorted by the caller if order matters.
func (m *ClientManager) Nodes() []string {
	nodes := make([]string, 0, len(m.peers))
	for n := range m.peers {
		nodes = append(nodes, n)
	}
	return nodes
}
