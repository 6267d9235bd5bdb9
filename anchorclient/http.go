// Package anchorclient implements anchor.Fetcher against a read-only
// HTTP JSON endpoint. The anchor-chain client is explicitly named as
// an external collaborator out of the core's scope (§1: "the core
// sees a fetch_block(height) interface returning timestamp and a list
// of custom operations") — this package is that collaborator's
// concrete shape, not part of the core itself, so it reaches for
// net/http directly rather than any of the core's own stack.
package anchorclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/futureshockco/meeray-node/anchor"
)

// HTTPFetcher fetches anchor blocks from a JSON endpoint of the shape
// GET {BaseURL}/blocks/{height} -> {"height":.., "timestamp":..,
// "operations":[{"sender":..,"type":..,"payload":{...}}]}.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher constructs a fetcher against baseURL with a bounded
// per-request timeout.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type wireOperation struct {
	Sender  string                 `json:"sender"`
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

type wireBlock struct {
	Height     uint64           `json:"height"`
	Timestamp  int64            `json:"timestamp"`
	Operations []wireOperation `json:"operations"`
}

// FetchBlock implements anchor.Fetcher.
func (f *HTTPFetcher) FetchBlock(ctx context.Context, height uint64) (anchor.Block, error) {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return anchor.Block{}, fmt.Errorf("anchorclient: invalid base url: %w", err)
	}
	u.Path = fmt.Sprintf("%s/blocks/%d", u.Path, height)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return anchor.Block{}, fmt.Errorf("anchorclient: build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return anchor.Block{}, fmt.Errorf("anchorclient: fetch_block(%d): %w", height, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return anchor.Block{}, fmt.Errorf("anchorclient: fetch_block(%d): unexpected status %d", height, resp.StatusCode)
	}

	var w wireBlock
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return anchor.Block{}, fmt.Errorf("anchorclient: decode fetch_block(%d): %w", height, err)
	}

	ops := make([]anchor.Operation, 0, len(w.Operations))
	for _, op := range w.Operations {
		ops = append(ops, anchor.Operation{Sender: op.Sender, Type: op.Type, Payload: op.Payload})
	}
	return anchor.Block{Height: w.Height, Timestamp: w.Timestamp, Operations: ops}, nil
}
