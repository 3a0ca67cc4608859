package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CallbackPayload is what a remote node's object handler posts back
// once it has produced an Outcome for a cast it accepted, completing
// the "wrap the coordinator's inbox behind an RPC-reachable handle"
// design from spec.md §9.
type CallbackPayload struct {
	ReqID    int64  `json:"req_id"`
	Node     string `json:"node"`
	Ack      bool   `json:"ack"`
	Checksum []byte `json:"checksum,omitempty"`
	Cause    string `json:"cause,omitempty"`
}

var callbackClient = &http.Client{Timeout: 5 * time.Second}

// PostCallback delivers payload to callbackURL. It is best-effort and
// not retried. A lost callback means the origin coordinator never
// receives this replica's outcome: no repair is enqueued for it, and
// the request times out if quorum had not been reached without it.
func PostCallback(ctx context.Context, callbackURL string, payload CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := callbackClient.Do(req)
	if err != nil {
		return fmt.Errorf("post callback to %s: %w", callbackURL, err)
	}
	defer resp.Body.Close()
	return nil
}
