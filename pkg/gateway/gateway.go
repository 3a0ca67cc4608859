package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"objectstore/pkg/catalog"
	"objectstore/pkg/logging"
	"objectstore/pkg/object"
	"objectstore/pkg/replication"
)

// Placer picks the replica set a chunk's partition is written to,
// backed in production by pkg/redundancy.Map.
type Placer interface {
	Targets(partitionID int, key []byte, n int) []object.ReplicaTarget
}

// Fetcher reads a chunk back from a specific node, used to reassemble
// a file on download. Backed by internal/rpc.PeerClient.Fetch for
// remote chunks and by a small local-store adapter for chunks this
// node itself holds.
type Fetcher interface {
	Fetch(ctx context.Context, node string, partitionID int, key []byte) ([]byte, error)
}

// Config wires one Gateway's dependencies.
type Config struct {
	SelfNode          string
	W                 int
	ReplicationFactor int
	ChunkSize         int64
	Facade            *replication.Facade
	Placer            Placer
	Fetcher           Fetcher
	Catalog           *catalog.Catalog
	Log               *logging.Logger
}

// Gateway is the file-level API sitting on top of the object
// replicator: it never touches the coordinator's inbox or timers
// directly, only replication.Facade.Replicate.
type Gateway struct {
	cfg     Config
	chunker *ChunkManager
}

func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg, chunker: NewChunkManager(cfg.ChunkSize)}
}

// Upload splits r into chunks and replicates each one independently,
// then records the resulting chunk locations as a new version of name
// in the catalog. A chunk replication failure aborts the whole upload;
// chunks already written are left in place and no catalog version
// records them. A later upload of the same name derives new chunk keys
// from its own timestamp, so it does not overwrite them.
func (g *Gateway) Upload(name, contentType string, r io.Reader, now time.Time) (catalog.FileVersion, error) {
	chunks, err := g.chunker.SplitFile(r)
	if err != nil {
		return catalog.FileVersion{}, fmt.Errorf("split file %s: %w", name, err)
	}

	fileID := generateFileID(name, now)
	locations := make([]catalog.ChunkLocation, 0, len(chunks))
	var totalSize int64

	for index, data := range chunks {
		partitionID := index
		key := []byte(generateChunkKey(fileID, index))
		targets := g.cfg.Placer.Targets(partitionID, key, g.cfg.ReplicationFactor)

		obj := object.Object{
			PartitionID: partitionID,
			Key:         key,
			Data:        data,
			ContentType: contentType,
			CreatedAt:   now,
		}

		var result replication.Result
		g.cfg.Facade.Replicate(object.Put, g.cfg.W, targets, obj, func(r replication.Result) {
			result = r
		})
		if !result.OK {
			return catalog.FileVersion{}, fmt.Errorf("replicate chunk %d of %s: %s", index, name, outcomeDescription(result))
		}

		locations = append(locations, catalog.ChunkLocation{
			Index:       index,
			PartitionID: partitionID,
			Key:         key,
			Size:        int64(len(data)),
			Checksum:    result.Checksum,
		})
		totalSize += int64(len(data))
	}

	fv := g.cfg.Catalog.Put(name, totalSize, contentType, locations, now)
	g.cfg.Log.Info("uploaded file",
		zap.String("name", name),
		zap.Int("version", fv.Version),
		zap.Int("chunks", len(locations)),
		zap.Int64("bytes", totalSize))
	return fv, nil
}

// Download reassembles version of name (or its latest version, when
// version is 0) by fetching each chunk from one of its replicas and
// concatenating in index order.
func (g *Gateway) Download(ctx context.Context, name string, version int) (io.Reader, catalog.FileVersion, error) {
	var (
		fv  catalog.FileVersion
		err error
	)
	if version <= 0 {
		fv, err = g.cfg.Catalog.Latest(name)
	} else {
		fv, err = g.cfg.Catalog.Version(name, version)
	}
	if err != nil {
		return nil, catalog.FileVersion{}, err
	}

	chunks := make([][]byte, len(fv.Chunks))
	for _, loc := range fv.Chunks {
		targets := g.cfg.Placer.Targets(loc.PartitionID, loc.Key, g.cfg.ReplicationFactor)

		data, err := g.fetchFromAnyReplica(ctx, targets, loc)
		if err != nil {
			return nil, catalog.FileVersion{}, fmt.Errorf("fetch chunk %d of %s: %w", loc.Index, name, err)
		}
		chunks[loc.Index] = data
	}

	return CombineChunks(chunks), fv, nil
}

func (g *Gateway) fetchFromAnyReplica(ctx context.Context, targets []object.ReplicaTarget, loc catalog.ChunkLocation) ([]byte, error) {
	var lastErr error
	for _, t := range targets {
		if !t.Reachable {
			continue
		}
		data, err := g.cfg.Fetcher.Fetch(ctx, t.Node, loc.PartitionID, loc.Key)
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no reachable replica held partition %d", loc.PartitionID)
	}
	return nil, lastErr
}

// Delete removes name from the catalog and issues a best-effort delete
// of every chunk through the replicator. Individual chunk delete
// failures are logged but do not stop the sweep; a chunk left behind
// on a replica after a failed delete is orphaned data, not a
// correctness problem the catalog needs to track.
func (g *Gateway) Delete(name string) error {
	fv, err := g.cfg.Catalog.Latest(name)
	if err != nil {
		return err
	}

	var chunks []catalog.ChunkLocation
	for v := 1; v <= fv.Version; v++ {
		if version, err := g.cfg.Catalog.Version(name, v); err == nil {
			chunks = append(chunks, version.Chunks...)
		}
	}

	for _, loc := range chunks {
		targets := g.cfg.Placer.Targets(loc.PartitionID, loc.Key, g.cfg.ReplicationFactor)
		obj := object.Object{PartitionID: loc.PartitionID, Key: loc.Key}

		var result replication.Result
		g.cfg.Facade.Replicate(object.Delete, g.cfg.W, targets, obj, func(r replication.Result) {
			result = r
		})
		if !result.OK {
			g.cfg.Log.Warn("failed to delete chunk during file delete",
				zap.String("name", name),
				zap.Int("chunk", loc.Index),
				zap.String("outcome", outcomeDescription(result)))
		}
	}

	return g.cfg.Catalog.Delete(name)
}

func (g *Gateway) List() []catalog.FileVersion {
	return g.cfg.Catalog.List()
}

func outcomeDescription(r replication.Result) string {
	if r.Timeout {
		return "timeout"
	}
	return fmt.Sprintf("%d replica errors", len(r.Errors))
}

func generateFileID(name string, now time.Time) string {
	sum := sha256.Sum256([]byte(name + now.String()))
	return hex.EncodeToString(sum[:])
}

func generateChunkKey(fileID string, index int) string {
	sum := sha256.Sum256([]byte(fileID + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:])
}
