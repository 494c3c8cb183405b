// Package client issues tool calls to the server under test over MCP
// (JSON-RPC 2.0). Server-reported failures come back inside the Response;
// the returned error is reserved for transport-level problems, which is what
// the executor's retry policy keys on.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"

	protocolVersion = "2024-11-05"
	initTimeout     = 30 * time.Second
	listTimeout     = 15 * time.Second
)

// ToolError is the error-matching surface of a failed call: the JSON-RPC
// error code (0 when the server conveyed the failure as a tool result) and
// the message text.
type ToolError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("tool error %d: %s", e.Code, e.Message)
	}
	return "tool error: " + e.Message
}

// ConnectionError is a transport-level failure; eligible for step retry.
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return "connection: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is a cancelled or expired call; eligible for step retry.
type TimeoutError struct{ Err error }

func (e *TimeoutError) Error() string { return "timeout: " + e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }

// Response is the structured outcome of one tool call.
type Response struct {
	// Err is set when the server reported a failure, either as a tool result
	// with isError or as a JSON-RPC error object.
	Err *ToolError
	// Text is the concatenated text content of the result.
	Text string
	// Value is Text decoded as JSON when it parses, else the raw string.
	Value any
}

func (r *Response) IsError() bool { return r.Err != nil }

// Tool describes one tool advertised by the server.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Options configures a connection.
type Options struct {
	Transport string            // streamable-http (default) or sse
	Headers   map[string]string // extra HTTP headers, e.g. auth
}

// Client is a connection to one MCP server. It is safe to share across
// scenarios: it holds no per-scenario state.
type Client struct {
	mcp      mcpclient.MCPClient
	endpoint string
}

// Connect dials the endpoint, starts the transport and performs the MCP
// initialize handshake.
func Connect(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	var (
		mc  mcpclient.MCPClient
		err error
	)
	switch opts.Transport {
	case TransportSSE:
		var topts []transport.ClientOption
		if len(opts.Headers) > 0 {
			topts = append(topts, transport.WithHeaders(opts.Headers))
		}
		mc, err = mcpclient.NewSSEMCPClient(endpoint, topts...)
	case TransportStreamableHTTP, "":
		var topts []transport.StreamableHTTPCOption
		if len(opts.Headers) > 0 {
			topts = append(topts, transport.WithHTTPHeaders(opts.Headers))
		}
		mc, err = mcpclient.NewStreamableHttpClient(endpoint, topts...)
	default:
		return nil, fmt.Errorf("unsupported transport %q", opts.Transport)
	}
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	type starter interface{ Start(context.Context) error }
	if s, ok := mc.(starter); ok {
		if err := s.Start(ctx); err != nil {
			mc.Close()
			return nil, classifyTransport(err)
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcp-qa", Version: "1.0.0"}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if _, err := mc.Initialize(initCtx, initReq); err != nil {
		mc.Close()
		return nil, classifyTransport(err)
	}

	return &Client{mcp: mc, endpoint: endpoint}, nil
}

// CallTool invokes one tool. The context carries the per-step timeout; expiry
// cancels the in-flight request and surfaces as a TimeoutError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*Response, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		if terr := classifyTransport(err); terr != nil {
			var protoErr *ToolError
			if errors.As(terr, &protoErr) {
				return &Response{Err: protoErr}, nil
			}
			return nil, terr
		}
	}
	if result == nil {
		return nil, &ConnectionError{Err: errors.New("empty result")}
	}

	text := textContent(result)
	resp := &Response{Text: text, Value: decodeText(text)}
	if result.IsError {
		resp.Err = toolErrorFromText(text)
		resp.Value = nil
	}
	return resp, nil
}

// ListTools returns the server's advertised tools with their raw input
// schemas, in server order.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	result, err := c.mcp.ListTools(listCtx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, classifyTransport(err)
	}

	out := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		raw := t.RawInputSchema
		if len(raw) == 0 {
			b, err := json.Marshal(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("tool %s: marshal schema: %w", t.Name, err)
			}
			raw = b
		}
		out = append(out, Tool{Name: t.Name, Description: t.Description, Schema: raw})
	}
	return out, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) Close() error {
	if c.mcp == nil {
		return nil
	}
	err := c.mcp.Close()
	c.mcp = nil
	return err
}

// ---- response plumbing ----

func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return text
}

// toolErrorFromText builds the error surface from an isError tool result.
// Servers that embed a structured {"code": ..., "message": ...} payload get
// both fields; plain text keeps code 0.
func toolErrorFromText(text string) *ToolError {
	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &payload) == nil {
		if payload.Error != nil && payload.Error.Message != "" {
			return &ToolError{Code: payload.Error.Code, Message: payload.Error.Message}
		}
		if payload.Message != "" {
			return &ToolError{Code: payload.Code, Message: payload.Message}
		}
	}
	return &ToolError{Message: text}
}

var (
	connPattern    = regexp.MustCompile(`(?i)connection refused|connection reset|no such host|dial tcp|broken pipe|unexpected EOF|EOF`)
	rpcCodePattern = regexp.MustCompile(`(-3\d{4})`)
)

// classifyTransport sorts a raw mcp-go error into the taxonomy: timeouts,
// connection failures, or a server-side JSON-RPC error (returned as a
// ToolError so expectations can match on it).
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TimeoutError{Err: err}
	}
	msg := err.Error()
	if connPattern.MatchString(msg) {
		return &ConnectionError{Err: err}
	}
	code := 0
	if m := rpcCodePattern.FindStringSubmatch(msg); m != nil {
		fmt.Sscanf(m[1], "%d", &code)
	}
	return &ToolError{Code: code, Message: msg}
}

// IsTransient reports whether an error is a transport-level failure that the
// per-step retry policy may retry. Assertion mismatches never come through
// here.
func IsTransient(err error) bool {
	var ce *ConnectionError
	var te *TimeoutError
	return errors.As(err, &ce) || errors.As(err, &te)
}
