package ir

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML-defined test unit against an MCP tool server.
type Scenario struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string       `json:"version,omitempty" yaml:"version,omitempty"`
	Tags        []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Server      ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
	FailFast    bool         `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	Setup       []Step       `json:"setup,omitempty" yaml:"setup,omitempty"`
	Steps       []Step       `json:"steps" yaml:"steps"`
	Teardown    []Step       `json:"teardown,omitempty" yaml:"teardown,omitempty"`

	// Source is the file the scenario was loaded from (set by the parser,
	// not part of the document).
	Source string `json:"-" yaml:"-"`
}

// ServerConfig identifies the server under test. The CLI --server flag
// overrides URL when both are present.
type ServerConfig struct {
	URL       string   `json:"url,omitempty" yaml:"url,omitempty"`
	Transport string   `json:"transport,omitempty" yaml:"transport,omitempty"` // "streamable-http" (default) | "sse"
	Timeout   Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Step is one tool invocation plus its expectations.
type Step struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tool        string            `json:"tool" yaml:"tool"`
	Input       map[string]any    `json:"input,omitempty" yaml:"input,omitempty"`
	Timeout     Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	DelayBefore Duration          `json:"delay_before,omitempty" yaml:"delay_before,omitempty"`
	DelayAfter  Duration          `json:"delay_after,omitempty" yaml:"delay_after,omitempty"`
	Retry       *Retry            `json:"retry,omitempty" yaml:"retry,omitempty"`
	Expect      Expect            `json:"expect,omitempty" yaml:"expect,omitempty"`
	Capture     map[string]string `json:"capture,omitempty" yaml:"capture,omitempty"`
}

// Retry controls re-attempts for transport-level failures. Assertion
// mismatches are never retried.
type Retry struct {
	Count   int      `json:"count" yaml:"count"`
	Delay   Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	OnError bool     `json:"on_error" yaml:"on_error"`
}

// Expect declares the expected outcome of a step. When Error is set the step
// must fail; otherwise it must succeed and every populated assertion field is
// checked (logical AND).
type Expect struct {
	// Success may be set explicitly; it defaults to true when Error is nil.
	Success *bool `json:"success,omitempty" yaml:"success,omitempty"`

	Equals   any                   `json:"equals,omitempty" yaml:"equals,omitempty"`
	Contains map[string]any        `json:"contains,omitempty" yaml:"contains,omitempty"`
	Types    map[string]string     `json:"types,omitempty" yaml:"types,omitempty"`
	Matches  map[string]string     `json:"matches,omitempty" yaml:"matches,omitempty"`
	Compare  map[string]Comparison `json:"compare,omitempty" yaml:"compare,omitempty"`
	Array    *ArrayAssertion       `json:"array,omitempty" yaml:"array,omitempty"`

	Error *ErrorExpect `json:"error,omitempty" yaml:"error,omitempty"`
}

// WantError reports whether the step is expected to fail.
func (e Expect) WantError() bool {
	if e.Error != nil {
		return true
	}
	return e.Success != nil && !*e.Success
}

// Comparison applies a numeric operator to one result field. Only numeric
// JSON values are comparable; anything else is an assertion failure.
type Comparison struct {
	Gt  *float64 `json:"gt,omitempty" yaml:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty" yaml:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty" yaml:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty" yaml:"lte,omitempty"`
	Eq  *float64 `json:"eq,omitempty" yaml:"eq,omitempty"`
	Ne  *float64 `json:"ne,omitempty" yaml:"ne,omitempty"`
}

// ArrayAssertion checks an array-valued result field (or the whole result
// when Path is empty).
type ArrayAssertion struct {
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Length    *int   `json:"length,omitempty" yaml:"length,omitempty"`
	MinLength *int   `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Contains  any    `json:"contains,omitempty" yaml:"contains,omitempty"`
	// AllMatch / AnyMatch recursively apply success assertions to every / any
	// element. An error expectation inside either is a validation error.
	AllMatch *Expect `json:"all_match,omitempty" yaml:"all_match,omitempty"`
	AnyMatch *Expect `json:"any_match,omitempty" yaml:"any_match,omitempty"`
}

// ErrorExpect matches a tool or protocol error by code and message.
type ErrorExpect struct {
	Code            *int   `json:"code,omitempty" yaml:"code,omitempty"`
	Message         string `json:"message,omitempty" yaml:"message,omitempty"`
	MessageContains string `json:"message_contains,omitempty" yaml:"message_contains,omitempty"`
	MessageMatches  string `json:"message_matches,omitempty" yaml:"message_matches,omitempty"`
}

// Duration decodes either a Go duration string ("5s", "250ms") or a bare
// integer interpreted as milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return nil, nil
	}
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration: expected string or integer, got %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
