package generator

import (
	"regexp"
	"strings"

	"mcp-qa/internal/schema"
)

// ---- minimal valid value synthesis ----

// minimalObject synthesizes the smallest input the schema accepts: every
// required field at its minimal value, every optional field omitted.
func minimalObject(root *schema.Node) map[string]any {
	if v, ok := minimalValue(root).(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func minimalValue(n *schema.Node) any {
	if n == nil {
		return nil
	}
	if len(n.Enum) > 0 {
		return n.Enum[0]
	}

	switch n.Type {
	case schema.TypeString:
		return minimalString(n)

	case schema.TypeInteger:
		return int(minimalNumber(n))

	case schema.TypeNumber:
		return minimalNumber(n)

	case schema.TypeBoolean:
		return true

	case schema.TypeArray:
		count := 0
		if n.MinItems != nil {
			count = *n.MinItems
		}
		arr := make([]any, count)
		for i := range arr {
			arr[i] = minimalValue(n.Items)
		}
		return arr

	case schema.TypeObject:
		obj := map[string]any{}
		for _, name := range n.PropOrder {
			if child := n.Properties[name]; child.Required {
				obj[name] = minimalValue(child)
			}
		}
		return obj

	case schema.TypeUnion:
		if len(n.Alternatives) > 0 {
			return minimalValue(n.Alternatives[0])
		}
		return nil
	}
	return nil
}

func minimalNumber(n *schema.Node) float64 {
	if n.Minimum != nil {
		v := *n.Minimum
		if n.ExclusiveMin {
			v++
		}
		return v
	}
	if n.Maximum != nil {
		v := *n.Maximum
		if n.ExclusiveMax {
			v--
		}
		if v < 1 {
			return v
		}
	}
	return 1
}

var formatSamples = map[string]string{
	"date":      "2024-01-01",
	"date-time": "2024-01-01T00:00:00Z",
	"time":      "12:00:00Z",
	"email":     "qa@example.com",
	"uri":       "https://example.com/x",
	"url":       "https://example.com/x",
	"uuid":      "550e8400-e29b-41d4-a716-446655440000",
	"hostname":  "example.com",
	"ipv4":      "192.0.2.1",
}

func minimalString(n *schema.Node) string {
	if s, ok := formatSamples[n.Format]; ok {
		return s
	}
	if n.Pattern != "" {
		return patternSample(n.Pattern)
	}
	return stringOfLength(n, clampLength(n, 1))
}

func clampLength(n *schema.Node, length int) int {
	if n.MinLength != nil && length < *n.MinLength {
		length = *n.MinLength
	}
	if n.MaxLength != nil && length > *n.MaxLength {
		length = *n.MaxLength
	}
	return length
}

func stringOfLength(n *schema.Node, length int) string {
	if length <= 0 {
		return ""
	}
	if s, ok := formatSamples[n.Format]; ok && len(s) == length {
		return s
	}
	return strings.Repeat("a", length)
}

// arrayOfLength builds an array of exactly length minimal item values.
func arrayOfLength(n *schema.Node, length int) []any {
	arr := make([]any, length)
	for i := range arr {
		arr[i] = minimalValue(n.Items)
	}
	return arr
}

// numeric casts a synthesized bound back to the node's declared type so
// integer fields receive integers.
func numeric(n *schema.Node, v float64) any {
	if n.Type == schema.TypeInteger {
		return int(v)
	}
	return v
}

// ---- counterexample synthesis ----

// patternCandidates is the fixed pool a pattern sample is picked from. The
// pool covers the common shapes tool schemas constrain: identifiers, dates,
// emails, URLs, UUIDs.
var patternCandidates = []string{
	"a", "A", "1", "abc", "ABC", "123", "a1", "test", "Test1",
	"a-1", "abc-123", "a-b", "a_b", "a.b", "v1.2.3", "file.txt",
	"2024-01-01", "2024-01-01T00:00:00Z",
	"qa@example.com", "https://example.com/x",
	"550e8400-e29b-41d4-a716-446655440000",
}

// patternSample returns a string matching the pattern. When no candidate
// matches, the anchor-stripped pattern text itself is tried as a literal;
// the self-check drops the case if that also fails.
func patternSample(pattern string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "a"
	}
	for _, c := range patternCandidates {
		if re.MatchString(c) {
			return c
		}
	}
	literal := strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$")
	if re.MatchString(literal) {
		return literal
	}
	return "a"
}

// patternCounterexample returns a string the pattern rejects, or false when
// every probe matches (e.g. ".*").
func patternCounterexample(pattern string) (string, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	for _, c := range []string{"", "!!!", "~", " ", "0", "zzz zzz"} {
		if !re.MatchString(c) {
			return c, true
		}
	}
	return "", false
}

// outsideEnum synthesizes a value of the same kind as the enum members that
// is guaranteed not to be one of them.
func outsideEnum(enum []any) any {
	switch enum[0].(type) {
	case float64, int:
		max := 0.0
		for _, v := range enum {
			if f, ok := v.(float64); ok && f > max {
				max = f
			}
		}
		return max + 1
	default:
		out := "__not_in_enum__"
		for containsValue(enum, out) {
			out += "_"
		}
		return out
	}
}

func containsValue(vs []any, want any) bool {
	for _, v := range vs {
		if v == want {
			return true
		}
	}
	return false
}

// typeViolations lists, per declared type, the structurally substitutable
// wrong-typed values a server must reject.
func typeViolations(t schema.Type) []any {
	switch t {
	case schema.TypeString:
		return []any{12345, true}
	case schema.TypeInteger:
		return []any{3.5, "not-a-number"}
	case schema.TypeNumber:
		return []any{"not-a-number", true}
	case schema.TypeBoolean:
		return []any{"yes", 1}
	case schema.TypeArray:
		return []any{"not-an-array"}
	case schema.TypeObject:
		return []any{42}
	}
	return nil
}

// unionMismatch synthesizes a value whose JSON kind is outside the kind set
// of every alternative. When the alternatives cover all kinds it falls back
// to a sentinel object no discriminated union accepts.
func unionMismatch(n *schema.Node) any {
	kinds := map[string]bool{}
	collectKinds(n, kinds)

	probes := []any{true, "__mismatch__", 123456, []any{"x"}, map[string]any{"x": 1}}
	for _, p := range probes {
		if !kinds[jsonKind(p)] {
			return p
		}
	}
	return map[string]any{"__no_alternative__": true}
}

func collectKinds(n *schema.Node, kinds map[string]bool) {
	switch n.Type {
	case schema.TypeString:
		kinds["string"] = true
	case schema.TypeNumber, schema.TypeInteger:
		kinds["number"] = true
	case schema.TypeBoolean:
		kinds["boolean"] = true
	case schema.TypeArray:
		kinds["array"] = true
	case schema.TypeObject:
		kinds["object"] = true
	case schema.TypeUnion:
		for _, alt := range n.Alternatives {
			collectKinds(alt, kinds)
		}
	}
}
