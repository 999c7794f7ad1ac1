// Package client queries a docproof node over the abci_query JSON-RPC
// protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/docproof/internal/jsonrpc"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// CodeTransportError is the RPCError code for failures that never produced a
// JSON-RPC reply: connection errors, timeouts and malformed envelopes.
const CodeTransportError = -32000

// RPCError is returned when the node cannot be reached or answers with a
// JSON-RPC error object.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
	cause   error
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error { return e.cause }

func transportError(msg string, err error) *RPCError {
	return &RPCError{Code: CodeTransportError, Message: msg + ": " + err.Error(), cause: err}
}

// Client issues abci_query requests. It never retries; callers own
// resilience policy.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the HTTP timeout. The timeout applies to a copy of the
// configured HTTP client; a client passed to WithHTTPClient is not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the node at endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "client")
	return c
}

type requestConfig struct {
	prove bool
}

// RequestOption configures a single request.
type RequestOption func(*requestConfig)

// WithProve asks the node for a proof instead of plain data.
func WithProve(prove bool) RequestOption {
	return func(rc *requestConfig) { rc.prove = prove }
}

// Request sends data to path and returns the raw response value. A nonzero
// response code is translated into a typed error: prefixed messages become
// *storage.InvalidQueryError, code 5 becomes *storage.NotFoundError and
// everything else a *storage.BackendError.
func (c *Client) Request(ctx context.Context, path string, data map[string]any, opts ...RequestOption) ([]byte, error) {
	var rc requestConfig
	for _, o := range opts {
		o(&rc)
	}
	if data == nil {
		data = map[string]any{}
	}

	encoded, err := util.MarshalCanonical(data)
	if err != nil {
		return nil, fmt.Errorf("encoding request data: %w", err)
	}
	params, err := json.Marshal(jsonrpc.QueryParams{
		Path:  path,
		Data:  util.HexEncode(encoded),
		Prove: rc.prove,
	})
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Method:  jsonrpc.MethodQuery,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}
	if resp.Result == nil {
		return nil, &RPCError{Code: CodeTransportError, Message: "response has neither result nor error"}
	}

	r := resp.Result.Response
	c.logger.Debug("abci_query", "path", path, "prove", rc.prove, "code", r.Code, "bytes", len(r.Value))
	if r.Code != storage.CodeOK {
		policy := storage.ReclassifyFind
		if rc.prove {
			policy = storage.ReclassifyProve
		}
		return nil, storage.Classify(storage.ParseBackendMessage(r.Code, r.Info), policy)
	}
	if r.Value == nil {
		return []byte{}, nil
	}
	return r.Value, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*jsonrpc.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportError("building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("sending request", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError("reading response", err)
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		if httpResp.StatusCode >= 400 {
			return nil, &RPCError{Code: CodeTransportError, Message: fmt.Sprintf("http status %d", httpResp.StatusCode)}
		}
		return nil, transportError("decoding response", err)
	}
	return &resp, nil
}
