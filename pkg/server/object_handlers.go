package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"objectstore/internal/rpc"
	"objectstore/pkg/object"
	"objectstore/pkg/replication"
)

const maxObjectBytes = 64 << 20 // 64 MiB per single-object write

// handlePut is the client-facing entrypoint of the write path: it
// resolves replica targets, calls the replication facade synchronously,
// and reports the coordinator's reply.
func (n *Node) handlePut(c *gin.Context) {
	n.replicateFromRequest(c, object.Put)
}

func (n *Node) handleDelete(c *gin.Context) {
	n.replicateFromRequest(c, object.Delete)
}

func (n *Node) replicateFromRequest(c *gin.Context, method object.Method) {
	partition, ok := parsePartition(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partition"})
		return
	}
	key := []byte(c.Param("key"))

	var data []byte
	if method == object.Put {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxObjectBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(body) > maxObjectBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "object exceeds maximum size"})
			return
		}
		data = body
	}

	w := n.cfg.DefaultW
	if raw := c.Query("w"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			w = parsed
		}
	}

	targets := n.cfg.Redundancy.Targets(partition, key, n.cfg.ReplicationFactor)
	obj := object.Object{PartitionID: partition, Key: key, Data: data, ContentType: c.ContentType()}

	var result replication.Result
	n.cfg.Facade.Replicate(method, w, targets, obj, func(r replication.Result) {
		result = r
	})

	switch {
	case result.OK:
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"method":   result.Method,
			"checksum": result.Checksum,
		})
	case result.Timeout:
		c.JSON(http.StatusGatewayTimeout, gin.H{"status": "timeout"})
	default:
		c.JSON(http.StatusConflict, gin.H{"status": "error", "errors": result.Errors})
	}
}

// handleGetObject serves a direct local read, used by end clients and
// by peer nodes fetching an already-replicated object for the file
// gateway's download path (internal/rpc.PeerClient.Fetch).
func (n *Node) handleGetObject(c *gin.Context) {
	partition, ok := parsePartition(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partition"})
		return
	}
	key := []byte(c.Param("key"))

	data, err := n.cfg.Local.Get(partition, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", data)
}

// handleInternalReplicate is the remote object handler spec.md §4.2's
// remote endpoint casts at: it applies the write locally and, once
// done, posts the outcome to the caller's callback URL out-of-band.
// The HTTP response here only acknowledges the cast was accepted for
// processing, matching "the RPC is effectively a cast".
func (n *Node) handleInternalReplicate(c *gin.Context) {
	var payload rpc.CastPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusAccepted)

	go n.applyAndCallback(payload)
}

func (n *Node) applyAndCallback(payload rpc.CastPayload) {
	obj := object.Object{PartitionID: payload.PartitionID, Key: payload.Key, Data: payload.Data}

	var (
		checksum []byte
		err      error
	)
	if payload.Method == object.Delete {
		err = n.cfg.Local.Delete(obj, "")
	} else {
		checksum, err = n.cfg.Local.Put(obj, "")
	}

	out := rpc.CallbackPayload{ReqID: payload.ReqID, Node: n.cfg.NodeID}
	if err != nil {
		n.log().Warn("remote replica write failed",
			zap.Int64("reqID", payload.ReqID),
			zap.Error(err))
		out.Ack = false
		out.Cause = "store_error"
	} else {
		out.Ack = true
		out.Checksum = checksum
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.callbackTimeout())
	defer cancel()
	if err := rpc.PostCallback(ctx, payload.CallbackURL, out); err != nil {
		n.log().Warn("failed to post replicate callback",
			zap.Int64("reqID", payload.ReqID),
			zap.String("callbackURL", payload.CallbackURL),
			zap.Error(err))
	}
}

// handleReplicateCallback routes an asynchronous outcome back into
// whichever local coordinator is still listening for reqID.
func (n *Node) handleReplicateCallback(c *gin.Context) {
	var payload rpc.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n.cfg.Registry.Deliver(payload.ReqID, replication.Outcome{
		Node:     payload.Node,
		Ack:      payload.Ack,
		Checksum: payload.Checksum,
		Cause:    payload.Cause,
	})

	c.Status(http.StatusOK)
}

func (n *Node) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"node_id": n.cfg.NodeID,
	})
}
