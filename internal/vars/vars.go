// Package vars holds the per-scenario execution context: variables captured
// from responses and the ${var} substitution applied to later steps.
// Substitution is two-phase: every token is resolved before a step executes,
// so an unresolved variable is its own error class instead of leaking into
// the request as text.
package vars

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Context is the capture store for one scenario run. It is created at
// scenario start and discarded at scenario end; nothing crosses scenario
// boundaries. Steps within a scenario are sequential, so no locking.
type Context struct {
	values map[string]any
}

func NewContext() *Context {
	return &Context{values: map[string]any{}}
}

func (c *Context) Set(name string, v any) { c.values[name] = v }

func (c *Context) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Names returns the defined variable names, sorted.
func (c *Context) Names() []string {
	out := make([]string, 0, len(c.values))
	for k := range c.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ---- capture path expressions ----

// CaptureError means a capture path resolved to nothing in the response.
type CaptureError struct {
	Path   string
	Reason string
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %q: %s", e.Path, e.Reason)
}

type pathSegment struct {
	key      string
	index    int
	isIndex  bool
	wildcard bool
}

// Extract resolves a dot/bracket path expression ("rows[0].id",
// "items[*].name") against a decoded JSON document. A wildcard collects all
// matching elements into an ordered slice. A path that resolves to nothing is
// a CaptureError, never a silent nil.
func Extract(doc any, path string) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	return extract(doc, segs, path)
}

func extract(doc any, segs []pathSegment, full string) (any, error) {
	cur := doc
	for i, seg := range segs {
		switch {
		case seg.wildcard:
			arr, ok := cur.([]any)
			if !ok {
				return nil, &CaptureError{Path: full, Reason: fmt.Sprintf("wildcard applied to %s", jsonKind(cur))}
			}
			if len(arr) == 0 {
				return nil, &CaptureError{Path: full, Reason: "wildcard over empty array"}
			}
			rest := segs[i+1:]
			if len(rest) == 0 {
				return arr, nil
			}
			out := make([]any, 0, len(arr))
			for _, el := range arr {
				v, err := extract(el, rest, full)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil

		case seg.isIndex:
			arr, ok := cur.([]any)
			if !ok {
				return nil, &CaptureError{Path: full, Reason: fmt.Sprintf("index applied to %s", jsonKind(cur))}
			}
			if seg.index < 0 || seg.index >= len(arr) {
				return nil, &CaptureError{Path: full, Reason: fmt.Sprintf("index %d out of range (len %d)", seg.index, len(arr))}
			}
			cur = arr[seg.index]

		default:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, &CaptureError{Path: full, Reason: fmt.Sprintf("key %q applied to %s", seg.key, jsonKind(cur))}
			}
			v, ok := obj[seg.key]
			if !ok {
				return nil, &CaptureError{Path: full, Reason: fmt.Sprintf("key %q not found", seg.key)}
			}
			cur = v
		}
	}
	return cur, nil
}

func parsePath(path string) ([]pathSegment, error) {
	p := strings.TrimPrefix(path, "$.")
	p = strings.TrimPrefix(p, "$")
	if p == "" {
		return nil, &CaptureError{Path: path, Reason: "empty path"}
	}

	var segs []pathSegment
	for _, part := range strings.Split(p, ".") {
		if part == "" {
			return nil, &CaptureError{Path: path, Reason: "empty path segment"}
		}
		key := part
		var brackets []string
		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				break
			}
			close := strings.IndexByte(key[open:], ']')
			if close < 0 {
				return nil, &CaptureError{Path: path, Reason: "unclosed bracket"}
			}
			brackets = append(brackets, key[open+1:open+close])
			key = key[:open] + key[open+close+1:]
		}
		if key != "" {
			segs = append(segs, pathSegment{key: key})
		}
		for _, b := range brackets {
			if b == "*" {
				segs = append(segs, pathSegment{wildcard: true})
				continue
			}
			idx, err := strconv.Atoi(b)
			if err != nil {
				return nil, &CaptureError{Path: path, Reason: fmt.Sprintf("bad index %q", b)}
			}
			segs = append(segs, pathSegment{index: idx, isIndex: true})
		}
	}
	return segs, nil
}

// ---- ${var} substitution ----

// SubstitutionError means a step referenced variables the context does not
// define. The scenario must not proceed past the failing step.
type SubstitutionError struct {
	Names []string
}

func (e *SubstitutionError) Error() string {
	return "unresolved variables: ${" + strings.Join(e.Names, "}, ${") + "}"
}

var tokenPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve walks a JSON value tree replacing ${name} tokens from the context.
// A string that is exactly one token is spliced with the captured value's
// original type; a token inside a larger string is coerced to its JSON string
// form. Any unresolved token fails the whole resolution.
func Resolve(v any, c *Context) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return resolveString(x, c)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			rv, err := Resolve(vv, c)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i := range x {
			rv, err := Resolve(x[i], c)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveString substitutes tokens in a single string, always returning a
// string (whole-token splicing does not apply).
func ResolveString(s string, c *Context) (string, error) {
	v, err := resolveString(s, c)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

func resolveString(s string, c *Context) (any, error) {
	// exact token: splice the value, preserving its type
	if m := tokenPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		v, ok := c.Get(m[1])
		if !ok {
			return nil, &SubstitutionError{Names: []string{m[1]}}
		}
		return v, nil
	}

	var missing []string
	out := tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[2 : len(tok)-1]
		v, ok := c.Get(name)
		if !ok {
			missing = append(missing, name)
			return tok
		}
		return stringify(v)
	})
	if len(missing) > 0 {
		return nil, &SubstitutionError{Names: missing}
	}
	return out, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int, int64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
