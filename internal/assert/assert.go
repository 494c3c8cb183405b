// Package assert evaluates a step's declared expectations against the actual
// tool response. Evaluate is pure: no I/O, no retries, no state.
package assert

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"mcp-qa/internal/client"
	"mcp-qa/internal/ir"
	"mcp-qa/internal/vars"
)

// Failure collects every assertion that did not hold. All declared variants
// are checked independently (logical AND), so a single evaluation can report
// multiple problems.
type Failure struct {
	Problems []string
}

func (f *Failure) Error() string {
	return "assertion failed: " + strings.Join(f.Problems, "; ")
}

// Evaluate checks a response against an expectation. Returns nil on match,
// *Failure otherwise.
func Evaluate(resp *client.Response, e ir.Expect) error {
	var problems []string

	if e.WantError() {
		problems = evalError(resp, e.Error)
	} else {
		problems = evalSuccess(resp, e)
	}

	if len(problems) > 0 {
		return &Failure{Problems: problems}
	}
	return nil
}

func evalError(resp *client.Response, want *ir.ErrorExpect) []string {
	if !resp.IsError() {
		return []string{"expected error, got success"}
	}
	if want == nil {
		return nil // success: false with no further constraints
	}

	var problems []string
	got := resp.Err

	if want.Code != nil && got.Code != *want.Code {
		problems = append(problems, fmt.Sprintf("error code: got %d, want %d", got.Code, *want.Code))
	}
	if want.Message != "" && got.Message != want.Message {
		problems = append(problems, fmt.Sprintf("error message: got %q, want %q", got.Message, want.Message))
	}
	if want.MessageContains != "" && !strings.Contains(got.Message, want.MessageContains) {
		problems = append(problems, fmt.Sprintf("error message %q does not contain %q", got.Message, want.MessageContains))
	}
	if want.MessageMatches != "" {
		re, err := regexp.Compile(want.MessageMatches)
		if err != nil {
			problems = append(problems, fmt.Sprintf("error message pattern: %v", err))
		} else if !re.MatchString(got.Message) {
			problems = append(problems, fmt.Sprintf("error message %q does not match %q", got.Message, want.MessageMatches))
		}
	}
	return problems
}

func evalSuccess(resp *client.Response, e ir.Expect) []string {
	if resp.IsError() {
		return []string{fmt.Sprintf("expected success, got error: %s", resp.Err.Message)}
	}

	var problems []string
	value := resp.Value

	if e.Equals != nil {
		want := Normalize(e.Equals)
		if !reflect.DeepEqual(want, value) {
			problems = append(problems, fmt.Sprintf("equals: got %s, want %s", compact(value), compact(want)))
		}
	}

	if len(e.Contains) > 0 {
		obj, ok := value.(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("contains: result is %s, not an object", kindOf(value)))
		} else if msg := containsSubset(obj, Normalize(e.Contains).(map[string]any), ""); msg != "" {
			problems = append(problems, "contains: "+msg)
		}
	}

	for _, field := range sortedKeys(e.Types) {
		want := e.Types[field]
		got, err := vars.Extract(value, field)
		if err != nil {
			problems = append(problems, fmt.Sprintf("types[%s]: %v", field, err))
			continue
		}
		if !kindMatches(got, want) {
			problems = append(problems, fmt.Sprintf("types[%s]: got %s, want %s", field, kindOf(got), want))
		}
	}

	for _, field := range sortedKeys(e.Matches) {
		pattern := e.Matches[field]
		got, err := vars.Extract(value, field)
		if err != nil {
			problems = append(problems, fmt.Sprintf("matches[%s]: %v", field, err))
			continue
		}
		s, ok := got.(string)
		if !ok {
			problems = append(problems, fmt.Sprintf("matches[%s]: value is %s, not a string", field, kindOf(got)))
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			problems = append(problems, fmt.Sprintf("matches[%s]: %v", field, err))
			continue
		}
		// no implicit anchoring: the pattern is taken literally
		if !re.MatchString(s) {
			problems = append(problems, fmt.Sprintf("matches[%s]: %q does not match %q", field, s, pattern))
		}
	}

	for _, field := range sortedKeys(e.Compare) {
		cmpSpec := e.Compare[field]
		got, err := vars.Extract(value, field)
		if err != nil {
			problems = append(problems, fmt.Sprintf("compare[%s]: %v", field, err))
			continue
		}
		n, ok := asNumber(got)
		if !ok {
			// a non-numeric value is an assertion failure, not a crash
			problems = append(problems, fmt.Sprintf("compare[%s]: value is %s, not a number", field, kindOf(got)))
			continue
		}
		problems = append(problems, evalComparison(field, n, cmpSpec)...)
	}

	if e.Array != nil {
		problems = append(problems, evalArray(value, e.Array)...)
	}

	return problems
}

func evalComparison(field string, n float64, c ir.Comparison) []string {
	var problems []string
	check := func(op string, want float64, ok bool) {
		if !ok {
			problems = append(problems, fmt.Sprintf("compare[%s]: %v %s %v is false", field, n, op, want))
		}
	}
	if c.Gt != nil {
		check(">", *c.Gt, n > *c.Gt)
	}
	if c.Gte != nil {
		check(">=", *c.Gte, n >= *c.Gte)
	}
	if c.Lt != nil {
		check("<", *c.Lt, n < *c.Lt)
	}
	if c.Lte != nil {
		check("<=", *c.Lte, n <= *c.Lte)
	}
	if c.Eq != nil {
		check("==", *c.Eq, n == *c.Eq)
	}
	if c.Ne != nil {
		check("!=", *c.Ne, n != *c.Ne)
	}
	return problems
}

func evalArray(value any, a *ir.ArrayAssertion) []string {
	target := value
	if a.Path != "" {
		v, err := vars.Extract(value, a.Path)
		if err != nil {
			return []string{fmt.Sprintf("array[%s]: %v", a.Path, err)}
		}
		target = v
	}
	arr, ok := target.([]any)
	if !ok {
		return []string{fmt.Sprintf("array: value is %s, not an array", kindOf(target))}
	}

	var problems []string
	if a.Length != nil && len(arr) != *a.Length {
		problems = append(problems, fmt.Sprintf("array length: got %d, want %d", len(arr), *a.Length))
	}
	if a.MinLength != nil && len(arr) < *a.MinLength {
		problems = append(problems, fmt.Sprintf("array length: got %d, want >= %d", len(arr), *a.MinLength))
	}
	if a.MaxLength != nil && len(arr) > *a.MaxLength {
		problems = append(problems, fmt.Sprintf("array length: got %d, want <= %d", len(arr), *a.MaxLength))
	}

	if a.Contains != nil {
		want := Normalize(a.Contains)
		found := false
		for _, el := range arr {
			if reflect.DeepEqual(el, want) {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("array does not contain %s", compact(want)))
		}
	}

	if a.AllMatch != nil {
		for i, el := range arr {
			if err := Evaluate(&client.Response{Value: el}, *a.AllMatch); err != nil {
				problems = append(problems, fmt.Sprintf("array[%d]: %v", i, err))
			}
		}
	}
	if a.AnyMatch != nil {
		matched := false
		for _, el := range arr {
			if Evaluate(&client.Response{Value: el}, *a.AnyMatch) == nil {
				matched = true
				break
			}
		}
		if !matched {
			problems = append(problems, "no array element matches any_match")
		}
	}
	return problems
}

// containsSubset matches want as a recursive subset of got: unspecified keys
// are ignored, nested objects recurse, everything else compares deep-equal.
func containsSubset(got, want map[string]any, prefix string) string {
	for _, k := range sortedKeys(want) {
		wv := want[k]
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		gv, ok := got[k]
		if !ok {
			return fmt.Sprintf("missing key %q", path)
		}
		wobj, wIsObj := wv.(map[string]any)
		gobj, gIsObj := gv.(map[string]any)
		if wIsObj && gIsObj {
			if msg := containsSubset(gobj, wobj, path); msg != "" {
				return msg
			}
			continue
		}
		if !reflect.DeepEqual(gv, wv) {
			return fmt.Sprintf("key %q: got %s, want %s", path, compact(gv), compact(wv))
		}
	}
	return ""
}

// ---- value helpers ----

// Normalize rewrites a YAML-decoded value tree into the shapes JSON decoding
// produces (float64 numbers, map[string]any objects) so comparisons against
// responses are type-stable.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = Normalize(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = Normalize(vv)
		}
		return out
	default:
		return v
	}
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// kindMatches accepts "null|string" style unions of JSON kind names.
func kindMatches(v any, want string) bool {
	got := kindOf(v)
	for _, alt := range strings.Split(want, "|") {
		if strings.TrimSpace(alt) == got {
			return true
		}
	}
	return false
}

func kindOf(v any) string {
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

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
