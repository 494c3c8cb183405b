package mocktool_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-qa/internal/client"
	"mcp-qa/internal/mocktool"
)

const configYAML = `
name: qa-mock
tools:
  - name: query
    description: Runs a query.
    schema:
      type: object
      properties:
        sql:
          type: string
        limit:
          type: integer
          minimum: 1
          maximum: 1000
      required: [sql]
  - name: ping
    response:
      status: ok
  - name: broken
    error:
      code: -32000
      message: upstream unavailable
`

func startServer(t *testing.T) *client.Client {
	t.Helper()

	cfg, err := mocktool.ParseConfig([]byte(configYAML))
	require.NoError(t, err)

	srv, err := mocktool.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(ts.Close)

	c, err := client.Connect(context.Background(), ts.URL, client.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestParseConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"no tools":       `name: x`,
		"missing name":   "tools:\n  - description: nameless",
		"duplicate name": "tools:\n  - name: a\n  - name: a",
		"unknown field":  "tools:\n  - name: a\n    bogus: true",
	}
	for label, raw := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := mocktool.ParseConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestListTools(t *testing.T) {
	c := startServer(t)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 3)

	byName := map[string]client.Tool{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	require.Contains(t, byName, "query")
	assert.Contains(t, string(byName["query"].Schema), `"sql"`)
}

func TestCallTool_EchoesArguments(t *testing.T) {
	c := startServer(t)

	resp, err := c.CallTool(context.Background(), "query", map[string]any{"sql": "SELECT 1"})
	require.NoError(t, err)
	require.False(t, resp.IsError())

	result, ok := resp.Value.(map[string]any)
	require.True(t, ok, "result is %T", resp.Value)
	args, ok := result["args"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", args["sql"])
}

func TestCallTool_CannedResponse(t *testing.T) {
	c := startServer(t)

	resp, err := c.CallTool(context.Background(), "ping", nil)
	require.NoError(t, err)
	require.False(t, resp.IsError())
	assert.Equal(t, map[string]any{"status": "ok"}, resp.Value)
}

func TestCallTool_SchemaViolationNamesField(t *testing.T) {
	c := startServer(t)

	cases := []struct {
		label string
		args  map[string]any
		want  string
	}{
		{"missing required", map[string]any{"limit": 50}, "sql"},
		{"above maximum", map[string]any{"sql": "SELECT 1", "limit": 1001}, "limit"},
		{"wrong type", map[string]any{"sql": 12345}, "sql"},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			resp, err := c.CallTool(context.Background(), "query", tc.args)
			require.NoError(t, err)
			require.True(t, resp.IsError(), "call must be rejected")
			assert.Equal(t, -32602, resp.Err.Code)
			assert.Contains(t, resp.Err.Message, tc.want)
		})
	}
}

func TestCallTool_ForcedError(t *testing.T) {
	c := startServer(t)

	resp, err := c.CallTool(context.Background(), "broken", nil)
	require.NoError(t, err)
	require.True(t, resp.IsError())
	assert.Equal(t, -32000, resp.Err.Code)
	assert.Equal(t, "upstream unavailable", resp.Err.Message)
}
