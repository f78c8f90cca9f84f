// Package ledger provides the JSON-RPC boundary to the distributed ledger:
// a client with bounded request timeouts, a process-wide signer and a
// single-flight dispatcher that serializes signed submissions.
package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tunevault/service_layer/internal/apperr"
)

// ClientConfig holds RPC client configuration.
type ClientConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// Client is a JSON-RPC client for the ledger node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// NewClient creates a ledger RPC client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, apperr.Config("SUI_RPC_URL", "RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Call performs a JSON-RPC call. Transport failures are surfaced as
// transient ledger errors; RPC error payloads are terminal.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Ledger(method, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Ledger(method, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.LedgerTransient(method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.LedgerTransient(method, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return nil, apperr.LedgerTransient(method, fmt.Errorf("node returned %d", resp.StatusCode))
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, apperr.Ledger(method, fmt.Errorf("unmarshal response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, apperr.Ledger(method, rpcResp.Error)
	}

	return rpcResp.Result, nil
}

// ExecuteSigned submits signed transaction bytes with a detached signature,
// requesting effects and events. The result is complete or the call fails.
func (c *Client) ExecuteSigned(ctx context.Context, txBytes, signature []byte) (*TxResult, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(txBytes),
		[]string{base64.StdEncoding.EncodeToString(signature)},
		map[string]bool{"showEffects": true, "showEvents": true},
	}

	raw, err := c.Call(ctx, "sui_executeTransactionBlock", params)
	if err != nil {
		return nil, err
	}
	return parseTxResult(raw), nil
}

// DevInspect evaluates a call read-only against current ledger state. No fee
// is charged and no state changes; the result is only a snapshot.
func (c *Client) DevInspect(ctx context.Context, call *MoveCall, sender string) (json.RawMessage, error) {
	txBytes, err := encodeCall(call)
	if err != nil {
		return nil, apperr.Ledger(call.Target(), fmt.Errorf("encode call: %w", err))
	}
	params := []interface{}{
		sender,
		base64.StdEncoding.EncodeToString(txBytes),
	}
	return c.Call(ctx, "sui_devInspectTransactionBlock", params)
}

// QueryEvents pages through ledger events for the deployed package starting
// after the given cursor. Used by the mirror reconciler.
func (c *Client) QueryEvents(ctx context.Context, packageID, cursor string, limit int) (json.RawMessage, error) {
	filter := map[string]interface{}{"Package": packageID}
	var cur interface{}
	if cursor != "" {
		cur = map[string]interface{}{"txDigest": cursor, "eventSeq": "0"}
	}
	return c.Call(ctx, "suix_queryEvents", []interface{}{filter, cur, limit, false})
}

func parseTxResult(raw json.RawMessage) *TxResult {
	doc := gjson.ParseBytes(raw)

	result := &TxResult{
		Digest: doc.Get("digest").String(),
		Status: doc.Get("effects.status.status").String(),
	}
	if effects := doc.Get("effects"); effects.Exists() {
		result.RawEffects = json.RawMessage(effects.Raw)
	}
	if events := doc.Get("events"); events.Exists() {
		result.RawEvents = json.RawMessage(events.Raw)
	}
	for _, created := range doc.Get("effects.created.#.reference.objectId").Array() {
		result.CreatedObjects = append(result.CreatedObjects, created.String())
	}
	return result
}
