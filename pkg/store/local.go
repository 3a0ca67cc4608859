// Package store is the local object store backing spec.md §4.2's local
// replica endpoint: it durably writes or deletes one object on this
// node's filesystem and returns a content checksum.
package store

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"objectstore/pkg/logging"
	"objectstore/pkg/metrics"
	"objectstore/pkg/object"
)

// Store is what pkg/replication's local endpoint depends on.
type Store interface {
	// Put durably writes data under (partitionID, key) and returns the
	// SHA-256 checksum of what was written.
	Put(o object.Object, token string) ([]byte, error)
	// Delete removes the object at (partitionID, key). Deleting a
	// nonexistent object is not an error, matching the coordinator's
	// treatment of Delete as an idempotent method.
	Delete(o object.Object, token string) error
}

// LocalStore persists objects as one file per key under
// <dataDir>/<partitionID>/<key>.
type LocalStore struct {
	dataDir string
	nodeID  string
	log     *logging.Logger
}

// New creates a LocalStore rooted at dataDir, creating it if absent.
func New(dataDir, nodeID string, log *logging.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	return &LocalStore{dataDir: dataDir, nodeID: nodeID, log: log}, nil
}

func (s *LocalStore) path(o object.Object) string {
	return filepath.Join(s.dataDir, strconv.Itoa(o.PartitionID), o.KeyString())
}

func (s *LocalStore) Put(o object.Object, token string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues("put", s.nodeID).Observe(time.Since(start).Seconds())
	}()

	dst := s.path(o)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("put", s.nodeID).Inc()
		return nil, fmt.Errorf("mkdir for %s: %w", dst, err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("put", s.nodeID).Inc()
		return nil, fmt.Errorf("create temp file for %s: %w", dst, err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(o.Data); err != nil {
		f.Close()
		metrics.StoreErrorsTotal.WithLabelValues("put", s.nodeID).Inc()
		return nil, fmt.Errorf("write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("put", s.nodeID).Inc()
		return nil, fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Rename(f.Name(), dst); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("put", s.nodeID).Inc()
		return nil, fmt.Errorf("rename into %s: %w", dst, err)
	}

	sum := sha256.Sum256(o.Data)
	checksum := sum[:]

	metrics.BytesTransferredTotal.WithLabelValues("put", s.nodeID).Add(float64(len(o.Data)))
	s.log.Info("stored object",
		zap.String("token", token),
		zap.Int("partition", o.PartitionID),
		zap.String("key", o.KeyString()),
		zap.Int("bytes", len(o.Data)))

	return checksum, nil
}

func (s *LocalStore) Delete(o object.Object, token string) error {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues("delete", s.nodeID).Observe(time.Since(start).Seconds())
	}()

	err := os.Remove(s.path(o))
	if err != nil && !os.IsNotExist(err) {
		metrics.StoreErrorsTotal.WithLabelValues("delete", s.nodeID).Inc()
		return fmt.Errorf("delete %s: %w", s.path(o), err)
	}

	s.log.Info("deleted object",
		zap.String("token", token),
		zap.Int("partition", o.PartitionID),
		zap.String("key", o.KeyString()))
	return nil
}

// Get reads back a previously stored object; used by the file gateway
// and by the node's GET /objects handler. Not part of the write-path
// contract the coordinator relies on.
func (s *LocalStore) Get(partitionID int, key []byte) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, strconv.Itoa(partitionID), string(key)))
	if err != nil {
		return nil, fmt.Errorf("read partition %d key %s: %w", partitionID, key, err)
	}
	return data, nil
}
