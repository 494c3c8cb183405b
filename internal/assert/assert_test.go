package assert_test

import (
	"encoding/json"
	"strings"
	"testing"

	"mcp-qa/internal/assert"
	"mcp-qa/internal/client"
	"mcp-qa/internal/ir"
)

func success(t *testing.T, raw string) *client.Response {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return &client.Response{Text: raw, Value: v}
}

func failure(code int, msg string) *client.Response {
	return &client.Response{Err: &client.ToolError{Code: code, Message: msg}}
}

func intp(i int) *int         { return &i }
func fp(f float64) *float64   { return &f }
func boolp(b bool) *bool      { return &b }

func TestEvaluate_ErrorExpectation(t *testing.T) {
	e := ir.Expect{Error: &ir.ErrorExpect{Code: intp(-32602), MessageContains: "limit"}}

	if err := assert.Evaluate(failure(-32602, "limit must be <= 1000"), e); err != nil {
		t.Fatalf("matching error rejected: %v", err)
	}
	if err := assert.Evaluate(success(t, `{"ok":true}`), e); err == nil {
		t.Fatal("expected 'expected error, got success'")
	} else if !strings.Contains(err.Error(), "expected error") {
		t.Fatalf("unexpected failure text: %v", err)
	}
	if err := assert.Evaluate(failure(-32000, "limit must be <= 1000"), e); err == nil {
		t.Fatal("wrong code should fail")
	}
	if err := assert.Evaluate(failure(-32602, "sql is required"), e); err == nil {
		t.Fatal("wrong message should fail")
	}
}

func TestEvaluate_SuccessGotError(t *testing.T) {
	err := assert.Evaluate(failure(0, "boom"), ir.Expect{Contains: map[string]any{"a": 1}})
	if err == nil || !strings.Contains(err.Error(), "expected success") {
		t.Fatalf("err = %v", err)
	}
}

func TestEvaluate_Contains(t *testing.T) {
	resp := success(t, `{"user": {"id": "u-1", "role": "admin", "extra": true}, "count": 2}`)

	ok := ir.Expect{Contains: map[string]any{"user": map[string]any{"role": "admin"}}}
	if err := assert.Evaluate(resp, ok); err != nil {
		t.Fatalf("subset should match: %v", err)
	}

	bad := ir.Expect{Contains: map[string]any{"user": map[string]any{"role": "guest"}}}
	if err := assert.Evaluate(resp, bad); err == nil {
		t.Fatal("mismatched nested value should fail")
	}

	missing := ir.Expect{Contains: map[string]any{"ghost": 1}}
	if err := assert.Evaluate(resp, missing); err == nil {
		t.Fatal("missing key should fail")
	}
}

func TestEvaluate_ContainsNormalizesYAMLNumbers(t *testing.T) {
	// YAML decodes integers as int; responses decode as float64
	resp := success(t, `{"count": 2}`)
	e := ir.Expect{Contains: map[string]any{"count": int(2)}}
	if err := assert.Evaluate(resp, e); err != nil {
		t.Fatalf("int/float64 mismatch not normalized: %v", err)
	}
}

func TestEvaluate_Equals(t *testing.T) {
	resp := success(t, `{"a": 1, "b": [true, null]}`)
	if err := assert.Evaluate(resp, ir.Expect{Equals: map[string]any{"a": 1, "b": []any{true, nil}}}); err != nil {
		t.Fatalf("equals should match: %v", err)
	}
	if err := assert.Evaluate(resp, ir.Expect{Equals: map[string]any{"a": 2}}); err == nil {
		t.Fatal("equals should fail")
	}
}

func TestEvaluate_Types(t *testing.T) {
	resp := success(t, `{"id": "u-1", "count": 3, "tags": [], "meta": null}`)

	e := ir.Expect{Types: map[string]string{
		"id":    "string",
		"count": "number",
		"tags":  "array",
		"meta":  "null|string",
	}}
	if err := assert.Evaluate(resp, e); err != nil {
		t.Fatalf("types should match: %v", err)
	}

	if err := assert.Evaluate(resp, ir.Expect{Types: map[string]string{"id": "number"}}); err == nil {
		t.Fatal("wrong type should fail")
	}
	if err := assert.Evaluate(resp, ir.Expect{Types: map[string]string{"ghost": "string"}}); err == nil {
		t.Fatal("missing field should fail")
	}
}

func TestEvaluate_Matches_NoImplicitAnchoring(t *testing.T) {
	resp := success(t, `{"id": "user-42-x"}`)
	// unanchored pattern matches a substring
	if err := assert.Evaluate(resp, ir.Expect{Matches: map[string]string{"id": `user-\d+`}}); err != nil {
		t.Fatalf("substring match should pass: %v", err)
	}
	// explicit anchors are honored literally
	if err := assert.Evaluate(resp, ir.Expect{Matches: map[string]string{"id": `^user-\d+$`}}); err == nil {
		t.Fatal("anchored pattern should fail")
	}
	// non-string target is a failure, not a crash
	resp2 := success(t, `{"id": 42}`)
	if err := assert.Evaluate(resp2, ir.Expect{Matches: map[string]string{"id": `\d+`}}); err == nil {
		t.Fatal("regex on number should fail")
	}
}

func TestEvaluate_Compare(t *testing.T) {
	resp := success(t, `{"count": 5, "name": "x"}`)

	ok := ir.Expect{Compare: map[string]ir.Comparison{"count": {Gte: fp(5), Lt: fp(10)}}}
	if err := assert.Evaluate(resp, ok); err != nil {
		t.Fatalf("comparison should hold: %v", err)
	}

	bad := ir.Expect{Compare: map[string]ir.Comparison{"count": {Gt: fp(5)}}}
	if err := assert.Evaluate(resp, bad); err == nil {
		t.Fatal("5 > 5 should fail")
	}

	nonNumeric := ir.Expect{Compare: map[string]ir.Comparison{"name": {Eq: fp(1)}}}
	err := assert.Evaluate(resp, nonNumeric)
	if err == nil || !strings.Contains(err.Error(), "not a number") {
		t.Fatalf("non-numeric comparison should fail cleanly, got %v", err)
	}
}

func TestEvaluate_Array(t *testing.T) {
	resp := success(t, `{"rows": [{"id": 1, "ok": true}, {"id": 2, "ok": true}]}`)

	e := ir.Expect{Array: &ir.ArrayAssertion{
		Path:      "rows",
		MinLength: intp(1),
		MaxLength: intp(5),
		AllMatch:  &ir.Expect{Types: map[string]string{"id": "number"}},
		AnyMatch:  &ir.Expect{Contains: map[string]any{"id": 2}},
	}}
	if err := assert.Evaluate(resp, e); err != nil {
		t.Fatalf("array assertion should hold: %v", err)
	}

	tooLong := ir.Expect{Array: &ir.ArrayAssertion{Path: "rows", MaxLength: intp(1)}}
	if err := assert.Evaluate(resp, tooLong); err == nil {
		t.Fatal("max_length should fail")
	}

	noneMatch := ir.Expect{Array: &ir.ArrayAssertion{Path: "rows", AnyMatch: &ir.Expect{Contains: map[string]any{"id": 99}}}}
	if err := assert.Evaluate(resp, noneMatch); err == nil {
		t.Fatal("any_match with no matching element should fail")
	}
}

func TestEvaluate_ArrayContains(t *testing.T) {
	resp := success(t, `{"tags": ["a", "b"]}`)
	if err := assert.Evaluate(resp, ir.Expect{Array: &ir.ArrayAssertion{Path: "tags", Contains: "b"}}); err != nil {
		t.Fatalf("contains should hold: %v", err)
	}
	if err := assert.Evaluate(resp, ir.Expect{Array: &ir.ArrayAssertion{Path: "tags", Contains: "z"}}); err == nil {
		t.Fatal("contains should fail")
	}
}

func TestEvaluate_AllAssertionsAreChecked(t *testing.T) {
	resp := success(t, `{"a": 1, "b": "x"}`)
	e := ir.Expect{
		Types:   map[string]string{"a": "string"},          // fails
		Matches: map[string]string{"b": `^y$`},             // fails
		Compare: map[string]ir.Comparison{"a": {Gt: fp(5)}}, // fails
	}
	err := assert.Evaluate(resp, e)
	if err == nil {
		t.Fatal("expected failure")
	}
	f, ok := err.(*assert.Failure)
	if !ok {
		t.Fatalf("%T is not *Failure", err)
	}
	if len(f.Problems) != 3 {
		t.Fatalf("problems = %v, want all three reported", f.Problems)
	}
}

func TestEvaluate_SuccessFalseWithoutErrorDetail(t *testing.T) {
	e := ir.Expect{Success: boolp(false)}
	if err := assert.Evaluate(failure(0, "anything"), e); err != nil {
		t.Fatalf("any error should satisfy success:false: %v", err)
	}
	if err := assert.Evaluate(success(t, `{}`), e); err == nil {
		t.Fatal("success should violate success:false")
	}
}
