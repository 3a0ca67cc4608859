// Package rpc is the outbound half of spec.md §4.2's remote endpoint:
// it casts a write at a peer node's object handler and, independently,
// fetches an already-replicated object back for the file gateway's
// download path. It never waits for the logical replication result —
// only for proof the peer accepted the request for processing.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"objectstore/pkg/object"
)

// ClientConfig mirrors the teacher's httpclient.ClientConfig.
type ClientConfig struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:       2 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    100 * time.Millisecond,
	}
}

// CastPayload is what a coordinator's remote endpoint sends to a peer's
// /internal/replicate handler.
type CastPayload struct {
	Method      object.Method `json:"method"`
	PartitionID int           `json:"partition_id"`
	Key         []byte        `json:"key"`
	Data        []byte        `json:"data"`
	ReqID       int64         `json:"req_id"`
	CallbackURL string        `json:"callback_url"`
}

// PeerClient is one circuit-breaker-protected HTTP client to a single
// peer node, adapted from internal/httpClient/node_client.go.
type PeerClient struct {
	node    string
	baseURL string
	http    *http.Client
	cfg     ClientConfig
	cb      *gobreaker.CircuitBreaker
}

// NewPeerClient builds a client to node at baseURL (e.g.
// "http://10.0.0.4:8080").
func NewPeerClient(node, baseURL string, cfg ClientConfig) *PeerClient {
	cbSettings := gobreaker.Settings{
		Name:        fmt.Sprintf("rpc-%s", node),
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}

	return &PeerClient{
		node:    node,
		baseURL: baseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
	}
}

func (c *PeerClient) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryDelay
	b.MaxElapsedTime = time.Duration(c.cfg.RetryAttempts) * c.cfg.Timeout
	return b
}

// Cast fires the one-way replication request at this peer. It returns
// an error only when the transport itself could not deliver the
// request (breaker open, connection refused, retries exhausted) — the
// logical outcome always comes back later via the callback registry.
func (c *PeerClient) Cast(ctx context.Context, payload CastPayload) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.executeCast(ctx, payload)
	})
	return err
}

func (c *PeerClient) executeCast(ctx context.Context, payload CastPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal cast payload: %w", err))
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/replicate", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build cast request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("cast to %s: %w", c.node, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("cast to %s returned %d", c.node, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("cast to %s rejected with %d: %s", c.node, resp.StatusCode, b))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(c.backoffPolicy(), ctx))
}

// Fetch synchronously retrieves an already-replicated object from this
// peer, used by the file gateway on download, not by the coordinator.
func (c *PeerClient) Fetch(ctx context.Context, partitionID int, key []byte) ([]byte, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.executeFetch(ctx, partitionID, key)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *PeerClient) executeFetch(ctx context.Context, partitionID int, key []byte) ([]byte, error) {
	var data []byte
	operation := func() error {
		url := fmt.Sprintf("%s/objects/%d/%s", c.baseURL, partitionID, key)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("object not found on %s", c.node))
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("fetch from %s returned %d: %s", c.node, resp.StatusCode, b)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(c.backoffPolicy(), ctx))
	return data, err
}

// Available reports whether the circuit is not tripped for this peer.
func (c *PeerClient) Available() bool { return c.cb.State() != gobreaker.StateOpen }

// State renders the breaker state for health reporting.
func (c *PeerClient) State() string {
	switch c.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}
