package rpc

import (
	"context"
	"fmt"
)

// LocalReader is this node's own object store, used by ClusterFetcher
// to serve a fetch for a chunk it happens to hold itself without an
// unnecessary network hop.
type LocalReader interface {
	Get(partitionID int, key []byte) ([]byte, error)
}

// ClusterFetcher implements pkg/gateway.Fetcher over ClientManager,
// routing a fetch to the local store when the requested node is this
// process and to the peer's HTTP object endpoint otherwise.
type ClusterFetcher struct {
	selfNode string
	local    LocalReader
	clients  *ClientManager
}

func NewClusterFetcher(selfNode string, local LocalReader, clients *ClientManager) *ClusterFetcher {
	return &ClusterFetcher{selfNode: selfNode, local: local, clients: clients}
}

func (f *ClusterFetcher) Fetch(ctx context.Context, node string, partitionID int, key []byte) ([]byte, error) {
	if node == f.selfNode {
		return f.local.Get(partitionID, key)
	}

	client, ok := f.clients.Client(node)
	if !ok {
		return nil, fmt.Errorf("no client configured for node %s", node)
	}
	return client.Fetch(ctx, partitionID, key)
}
