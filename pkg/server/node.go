// Package server exposes this node's HTTP surface: the client-facing
// object API, the inter-node replication API, health, and metrics.
// Routing follows the teacher's gin-based storage node server.
package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"objectstore/internal/rpc"
	"objectstore/pkg/gateway"
	"objectstore/pkg/logging"
	"objectstore/pkg/object"
	"objectstore/pkg/redundancy"
	"objectstore/pkg/replication"
)

// ObjectStore is this package's dependency on the local object store:
// just enough to serve a client GET and to back the internal replica
// handler's writes.
type ObjectStore interface {
	Put(o object.Object, token string) ([]byte, error)
	Delete(o object.Object, token string) error
	Get(partitionID int, key []byte) ([]byte, error)
}

// Config wires one Node's dependencies.
type Config struct {
	NodeID            string
	DefaultW          int
	ReplicationFactor int
	Facade            *replication.Facade
	Redundancy        *redundancy.Map
	Local             ObjectStore
	Registry          *rpc.Registry
	Log               *logging.Logger

	// Gateway is optional: a node started without the file gateway
	// leaves it nil and never registers the /files routes.
	Gateway *gateway.Gateway
}

// Node is this process's HTTP server.
type Node struct {
	router *gin.Engine
	cfg    Config
}

func New(cfg Config) *Node {
	n := &Node{router: gin.New(), cfg: cfg}
	n.router.Use(gin.Recovery(), MetricsMiddleware(cfg.NodeID))
	n.setupRoutes()
	return n
}

func (n *Node) setupRoutes() {
	n.router.POST("/objects/:partition/:key", n.handlePut)
	n.router.DELETE("/objects/:partition/:key", n.handleDelete)
	n.router.GET("/objects/:partition/:key", n.handleGetObject)

	n.router.POST("/internal/replicate", n.handleInternalReplicate)
	n.router.POST("/internal/replicate/callback", n.handleReplicateCallback)

	n.router.GET("/health", n.handleHealth)
	n.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	n.registerFileRoutes()
}

func (n *Node) Run(addr string) error {
	n.log().Info("starting node server", zap.String("addr", addr), zap.String("node_id", n.cfg.NodeID))
	return n.router.Run(addr)
}

func (n *Node) log() *logging.Logger { return n.cfg.Log }

// callbackTimeout bounds how long a replica write waits for its
// own callback POST to land before giving up on it.
func (n *Node) callbackTimeout() time.Duration { return 5 * time.Second }

func parsePartition(c *gin.Context) (int, bool) {
	partition, err := strconv.Atoi(c.Param("partition"))
	return partition, err == nil
}
