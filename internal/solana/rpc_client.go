package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/retry"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 5
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 1.5
	DefaultCommitment  = "confirmed"

	// DefaultPendingWindow bounds how long getBlock waits for a block the node reports
	// as not available yet. Skipped slots near the tip need ~13s to root.
	DefaultPendingWindow = time.Minute
)

// HTTPClient implements ChainClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	policy     retry.Policy
	pending    time.Duration
	commitment string
	log        *zap.SugaredLogger
	requestID  atomic.Uint64
}

var _ ChainClient = (*HTTPClient)(nil)
var _ AccountReader = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		if n < 0 {
			n = 0
		}
		c.policy.MaxTries = uint(n) + 1
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.policy.InitialInterval = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.policy.MaxInterval = d
	}
}

// WithPendingWindow sets how long getBlock keeps polling a block that is not available yet.
// Attempts inside the window do not count against the retry budget.
func WithPendingWindow(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.pending = d
		}
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithCommitment sets the commitment level used for reads.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) {
		if commitment != "" {
			c.commitment = commitment
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log *zap.SugaredLogger) ClientOption {
	return func(c *HTTPClient) {
		c.log = log
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		policy: retry.Policy{
			InitialInterval: DefaultRetryDelay,
			MaxInterval:     DefaultMaxDelay,
			Multiplier:      DefaultBackoffMult,
			MaxTries:        DefaultMaxRetries + 1,
		},
		pending:    DefaultPendingWindow,
		commitment: DefaultCommitment,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Nop(c.log)
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs a JSON-RPC call. Transient failures are retried with exponential
// backoff; skipped slots and fatal RPC errors return immediately.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.do(ctx, method, params, result, false)
}

// callNotNull is call for methods whose null result means "not available yet".
// Not-yet-available answers are polled for the pending window instead of spending retries.
func (c *HTTPClient) callNotNull(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.do(ctx, method, params, result, true)
}

func (c *HTTPClient) do(ctx context.Context, method string, params []interface{}, result interface{}, notNull bool) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	policy := c.policy
	if notNull {
		// Failures are counted below so that pending answers stay outside the budget.
		policy.MaxTries = 0
		policy.MaxElapsedTime = c.pending
	}

	var failures uint
	err := retry.DoNoReturn(ctx, policy, c.log, method, func() error {
		err := c.attempt(ctx, method, params, result, notNull)
		if err == nil {
			return nil
		}
		kind := KindOf(err)
		observability.RecordRPCError(method, kind.String())
		if kind != KindTransient || ctx.Err() != nil {
			return retry.Permanent(err)
		}
		if notNull && errors.Is(err, ErrBlockPending) {
			return err
		}
		failures++
		if notNull && c.policy.MaxTries > 0 && failures >= c.policy.MaxTries {
			return retry.Permanent(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if KindOf(err) == KindTransient {
		return fmt.Errorf("%s: %w: %w", method, ErrRetriesExhausted, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// attempt performs a single request and classifies any failure.
func (c *HTTPClient) attempt(ctx context.Context, method string, params []interface{}, result interface{}, notNull bool) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return &RPCError{Kind: KindFatal, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &RPCError{Kind: KindFatal, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &RPCError{Kind: KindTransient, Message: "http request", Err: err}
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &RPCError{Kind: KindTransient, Message: "read response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RPCError{Kind: KindTransient, Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &RPCError{Kind: KindTransient, Code: resp.StatusCode, Message: string(respBody)}
	case resp.StatusCode != http.StatusOK:
		return &RPCError{Kind: KindFatal, Code: resp.StatusCode, Message: string(respBody)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return &RPCError{Kind: KindTransient, Message: "unmarshal response", Err: err}
	}
	if rpcResp.Error != nil {
		return &RPCError{
			Kind:    classifyCode(rpcResp.Error.Code),
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			pending: notNull && rpcResp.Error.Code == codeBlockNotAvailable,
		}
	}

	if notNull && (len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null") {
		return &RPCError{Kind: KindTransient, Message: "null result", pending: true}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &RPCError{Kind: KindFatal, Message: "unmarshal result", Err: err}
		}
	}
	return nil
}

// GetSlot retrieves the current slot at the configured commitment.
func (c *HTTPClient) GetSlot(ctx context.Context) (uint64, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	}
	var result uint64
	if err := c.call(ctx, "getSlot", params, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetBlock retrieves a block with full, binary encoded transactions.
func (c *HTTPClient) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "base64",
			"transactionDetails":             "full",
			"maxSupportedTransactionVersion": 0,
			"rewards":                        false,
			"commitment":                     c.commitment,
		},
	}

	var result rpc.GetBlockResult
	if err := c.callNotNull(ctx, "getBlock", params, &result); err != nil {
		return nil, err
	}

	block, dropped := convertBlock(slot, &result)
	if dropped > 0 {
		c.log.Warnw("undecodable transactions in block", "slot", slot, "dropped", dropped)
	}
	return block, nil
}

// GetAccountInfo retrieves account info by public key.
// Returns nil if account not found.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": c.commitment,
		},
	}

	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
	}
	if len(result.Value.Data) >= 1 {
		data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

type getAccountInfoResult struct {
	Value *getAccountInfoValue `json:"value"`
}

type getAccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
}
