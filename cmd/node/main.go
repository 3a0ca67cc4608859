// Command node runs one storage node: the local object store, the
// replication coordinator, the durable repair queue and its drain
// loop, the optional file gateway, and the HTTP server exposing all of
// it. Cluster membership is static, supplied as a flag-driven peer
// list the way the teacher's per-server binaries hardcoded theirs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"objectstore/internal/rpc"
	"objectstore/pkg/catalog"
	"objectstore/pkg/gateway"
	"objectstore/pkg/logging"
	"objectstore/pkg/metrics"
	"objectstore/pkg/redundancy"
	"objectstore/pkg/repairqueue"
	"objectstore/pkg/replication"
	"objectstore/pkg/server"
	"objectstore/pkg/store"
)

func main() {
	nodeID := flag.String("id", "", "This node's identity, must be a key in -peers")
	listenAddr := flag.String("listen", ":8081", "Address this node's HTTP server binds to")
	peersFlag := flag.String("peers", "", "Comma-separated node=baseURL pairs for every node in the cluster, including this one")
	dataDir := flag.String("data-dir", "./data", "Directory for this node's object store and repair queue")
	replicationFactor := flag.Int("replication-factor", 3, "Default number of replicas per partition")
	writeQuorum := flag.Int("w", 2, "Default write quorum")
	reqTimeout := flag.Duration("req-timeout", 2*time.Second, "Per-request replication deadline")
	chunkSize := flag.Int64("chunk-size", gateway.DefaultChunkSize, "File gateway chunk size in bytes")
	enableGateway := flag.Bool("enable-gateway", true, "Serve the /files convenience API")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")

	flag.Parse()

	if *nodeID == "" {
		fmt.Fprintln(os.Stderr, "-id is required")
		os.Exit(1)
	}

	peers, err := parsePeers(*peersFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -peers: %v\n", err)
		os.Exit(1)
	}
	selfBaseURL, ok := peers[*nodeID]
	if !ok {
		fmt.Fprintf(os.Stderr, "-id %q is not present in -peers\n", *nodeID)
		os.Exit(1)
	}

	log := logging.MustGet(logging.Config{
		Service:     "node-" + *nodeID,
		Level:       *logLevel,
		OutputPaths: []string{"stdout"},
	})
	defer logging.Shutdown()

	nodeNames := make([]string, 0, len(peers))
	remotePeers := make(map[string]string, len(peers))
	for name, baseURL := range peers {
		nodeNames = append(nodeNames, name)
		if name != *nodeID {
			remotePeers[name] = baseURL
		}
	}

	localStore, err := store.New(*dataDir+"/objects", *nodeID, log)
	if err != nil {
		log.Error("failed to open local store", zap.Error(err))
		os.Exit(1)
	}

	repairQueue, err := repairqueue.Open(*dataDir+"/repair.db", *nodeID, log)
	if err != nil {
		log.Error("failed to open repair queue", zap.Error(err))
		os.Exit(1)
	}
	defer repairQueue.Close()

	clientManager := rpc.NewClientManager(remotePeers, rpc.DefaultClientConfig())
	registry := rpc.NewRegistry()
	caster := rpc.NewCaster(clientManager, registry, selfBaseURL)

	redundancyMap := redundancy.New(*nodeID, nodeNames, *replicationFactor, clientManager)

	facade := replication.NewFacade(replication.Config{
		SelfNode:   *nodeID,
		ReqTimeout: *reqTimeout,
		Local:      localStore,
		Remote:     caster,
		Repair:     repairQueue,
		Log:        log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go metrics.RunSystemSampler(ctx, *nodeID, *dataDir, 15*time.Second)
	go repairqueue.RunDrainLoop(ctx, repairQueue, *nodeID, redundancyMap, repairqueue.DefaultDrainConfig(), log)
	go reportPeerAvailability(ctx, clientManager, remotePeers, log)

	cfg := server.Config{
		NodeID:            *nodeID,
		DefaultW:          *writeQuorum,
		ReplicationFactor: *replicationFactor,
		Facade:            facade,
		Redundancy:        redundancyMap,
		Local:             localStore,
		Registry:          registry,
		Log:               log,
	}

	if *enableGateway {
		fetcher := rpc.NewClusterFetcher(*nodeID, localStore, clientManager)
		cfg.Gateway = gateway.New(gateway.Config{
			SelfNode:          *nodeID,
			W:                 *writeQuorum,
			ReplicationFactor: *replicationFactor,
			ChunkSize:         *chunkSize,
			Facade:            facade,
			Placer:            redundancyMap,
			Fetcher:           fetcher,
			Catalog:           catalog.New(),
			Log:               log,
		})
	}

	node := server.New(cfg)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down", zap.String("node_id", *nodeID))
		cancel()
		os.Exit(0)
	}()

	if err := node.Run(*listenAddr); err != nil {
		log.Error("node server exited", zap.Error(err))
		os.Exit(1)
	}
}

func parsePeers(raw string) (map[string]string, error) {
	peers := make(map[string]string)
	if raw == "" {
		return peers, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed peer entry %q, expected node=baseURL", pair)
		}
		peers[parts[0]] = parts[1]
	}
	return peers, nil
}

// reportPeerAvailability republishes ClientManager's breaker state as
// the node_availability gauge so it shows up on this node's own
// /metrics without every caller having to poll Reachable itself.
func reportPeerAvailability(ctx context.Context, clients *rpc.ClientManager, remotePeers map[string]string, log *logging.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for peer := range remotePeers {
				value := 0.0
				if clients.Reachable(peer) {
					value = 1.0
				}
				metrics.NodeAvailability.WithLabelValues(peer).Set(value)
			}
		}
	}
}
