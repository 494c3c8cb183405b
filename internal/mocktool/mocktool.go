// Package mocktool serves a configurable mock MCP tool server. Tools are
// declared in YAML with a JSON input schema; handlers validate every call
// against that schema and reject violations with an error naming the field,
// so generated invalid cases get a server that behaves per contract.
package mocktool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"mcp-qa/internal/ir"
)

const invalidParamsCode = -32602

// Config declares the mock server's tool set.
type Config struct {
	Name  string       `yaml:"name,omitempty"`
	Tools []ToolConfig `yaml:"tools"`
}

// ToolConfig declares one tool: its input schema and what it answers.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	// Schema is the tool's JSON input schema, written as YAML.
	Schema map[string]any `yaml:"schema,omitempty"`
	// Response is the canned result. When nil the tool echoes its arguments
	// back as {"ok": true, "args": {...}}.
	Response any `yaml:"response,omitempty"`
	// Delay holds the response for the given duration, for timeout testing.
	Delay ir.Duration `yaml:"delay,omitempty"`
	// Error makes every call fail with this code and message.
	Error *ErrorConfig `yaml:"error,omitempty"`
}

// ErrorConfig is a forced failure response.
type ErrorConfig struct {
	Code    int    `yaml:"code,omitempty"`
	Message string `yaml:"message"`
}

// LoadConfig reads and validates a YAML tool declaration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML tool declaration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Tools) == 0 {
		return nil, errors.New("config declares no tools")
	}
	seen := map[string]bool{}
	for i, t := range cfg.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tools[%d]: name is required", i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("tools[%d]: duplicate tool %q", i, t.Name)
		}
		seen[t.Name] = true
	}
	return &cfg, nil
}

// Server is a mock MCP tool server. It serves stdio or streamable HTTP.
type Server struct {
	name string
	mcp  *server.MCPServer
}

// New builds the MCP server from a config, compiling each tool's schema for
// argument validation.
func New(cfg *Config) (*Server, error) {
	name := cfg.Name
	if name == "" {
		name = "mcpmock"
	}
	mcpServer := server.NewMCPServer(name, "1.0.0", server.WithToolCapabilities(false))

	for _, tc := range cfg.Tools {
		schemaDoc := tc.Schema
		if schemaDoc == nil {
			schemaDoc = map[string]any{"type": "object"}
		}
		raw, err := json.Marshal(schemaDoc)
		if err != nil {
			return nil, fmt.Errorf("tool %s: encode schema: %w", tc.Name, err)
		}
		var compiled openapi3.Schema
		if err := compiled.UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("tool %s: compile schema: %w", tc.Name, err)
		}

		tool := mcp.NewToolWithRawSchema(tc.Name, tc.Description, raw)
		mcpServer.AddTool(tool, handler(tc, &compiled))
	}
	return &Server{name: name, mcp: mcpServer}, nil
}

func handler(tc ToolConfig, compiled *openapi3.Schema) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		if err := compiled.VisitJSON(args); err != nil {
			return errorResult(invalidParamsCode, validationMessage(err)), nil
		}
		if tc.Error != nil {
			return errorResult(tc.Error.Code, tc.Error.Message), nil
		}
		if d := tc.Delay.Std(); d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}

		result := tc.Response
		if result == nil {
			result = map[string]any{"ok": true, "args": args}
		}
		return textResult(result), nil
	}
}

func textResult(v any) *mcp.CallToolResult {
	switch v.(type) {
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return mcp.NewToolResultText(string(b))
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("%v", v))
}

// errorResult encodes the failure as the structured payload the assertion
// evaluator matches code and message against.
func errorResult(code int, message string) *mcp.CallToolResult {
	payload := map[string]any{"error": map[string]any{"code": code, "message": message}}
	b, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultError(string(b))
}

// validationMessage flattens a schema violation into one line naming the
// violated field.
func validationMessage(err error) string {
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if path := strings.Join(se.JSONPointer(), "."); path != "" {
			return fmt.Sprintf("%s: %s", path, se.Reason)
		}
		return se.Reason
	}
	return err.Error()
}

// HTTPHandler exposes the server over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ListenAndServe blocks serving streamable HTTP on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.HTTPHandler())
}
