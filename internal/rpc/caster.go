package rpc

import (
	"context"
	"fmt"

	"objectstore/pkg/object"
	"objectstore/pkg/replication"
)

// Caster adapts a ClientManager + Registry into replication.RemoteCaster.
// It is the only piece of this codebase that turns spec.md §4.2's
// abstract "remote endpoint" into an actual network call.
type Caster struct {
	clients     *ClientManager
	registry    *Registry
	selfBaseURL string
}

func NewCaster(clients *ClientManager, registry *Registry, selfBaseURL string) *Caster {
	return &Caster{clients: clients, registry: registry, selfBaseURL: selfBaseURL}
}

// Cast fires the one-way replication request at node and registers ch
// to receive whatever outcome eventually arrives at this node's
// /internal/replicate/callback endpoint. A non-nil return means the
// transport failed before handoff; the coordinator must treat that as
// Fail(node, nodedown) itself, per spec.md §6.
func (c *Caster) Cast(node string, method object.Method, o object.Object, reqID int64, ch chan<- replication.Outcome) error {
	peer, ok := c.clients.Client(node)
	if !ok {
		return fmt.Errorf("unknown peer node %q", node)
	}

	c.registry.Register(reqID, ch)

	payload := CastPayload{
		Method:      method,
		PartitionID: o.PartitionID,
		Key:         o.Key,
		Data:        o.Data,
		ReqID:       reqID,
		CallbackURL: c.selfBaseURL + "/internal/replicate/callback",
	}

	if err := peer.Cast(context.Background(), payload); err != nil {
		// reqID stays registered: other peers of the same request share
		// this entry, and Release drops it once the coordinator exits.
		return fmt.Errorf("cast to %s: %w", node, err)
	}
	return nil
}

// Release forgets reqID once the local coordinator has stopped
// listening for its remote outcomes.
func (c *Caster) Release(reqID int64) {
	c.registry.Unregister(reqID)
}
