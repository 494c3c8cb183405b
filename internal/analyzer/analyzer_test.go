package analyzer_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"mcp-qa/internal/analyzer"
	"mcp-qa/internal/schema"
)

func analyze(t *testing.T, raw string) []analyzer.Constraint {
	t.Helper()
	node, issues, err := schema.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("schema issues: %v", issues)
	}
	return analyzer.Analyze(node)
}

// kindsByPath collapses constraints into path -> kinds for easy comparison.
func kindsByPath(cs []analyzer.Constraint) map[string][]analyzer.Kind {
	out := map[string][]analyzer.Kind{}
	for _, c := range cs {
		key := c.Path.String()
		out[key] = append(out[key], c.Kind)
	}
	return out
}

func TestAnalyze_QueryTool(t *testing.T) {
	cs := analyze(t, `{
	  "type": "object",
	  "properties": {
	    "sql":   {"type": "string", "minLength": 1},
	    "limit": {"type": "integer", "minimum": 1, "maximum": 1000}
	  },
	  "required": ["sql"]
	}`)

	want := map[string][]analyzer.Kind{
		"limit": {analyzer.KindType, analyzer.KindMinimum, analyzer.KindMaximum},
		"sql":   {analyzer.KindRequired, analyzer.KindType, analyzer.KindMinLength},
	}
	if diff := cmp.Diff(want, kindsByPath(cs)); diff != "" {
		t.Fatalf("constraints mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_NestedObjectAndArray(t *testing.T) {
	cs := analyze(t, `{
	  "type": "object",
	  "properties": {
	    "filter": {
	      "type": "object",
	      "properties": {
	        "tags": {"type": "array", "items": {"type": "string", "pattern": "^[a-z]+$"}, "maxItems": 5}
	      },
	      "required": ["tags"]
	    }
	  }
	}`)

	got := kindsByPath(cs)
	want := map[string][]analyzer.Kind{
		"filter":        {analyzer.KindType},
		"filter.tags":   {analyzer.KindRequired, analyzer.KindType, analyzer.KindMaxItems},
		"filter.tags[]": {analyzer.KindType, analyzer.KindPattern},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("constraints mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_UnionTagsAlternatives(t *testing.T) {
	cs := analyze(t, `{
	  "type": "object",
	  "properties": {
	    "target": {"oneOf": [{"type": "string", "minLength": 2}, {"type": "integer", "minimum": 0}]}
	  }
	}`)

	var unionSeen bool
	altsByKind := map[analyzer.Kind]int{}
	for _, c := range cs {
		if c.Path.String() != "target" {
			continue
		}
		if c.Kind == analyzer.KindUnion {
			unionSeen = true
			if c.Alt != -1 {
				t.Fatalf("union constraint alt = %d, want -1", c.Alt)
			}
			continue
		}
		altsByKind[c.Kind] = c.Alt
	}
	if !unionSeen {
		t.Fatal("no union constraint emitted for target")
	}
	if altsByKind[analyzer.KindMinLength] != 0 {
		t.Fatalf("minLength alt = %d, want 0", altsByKind[analyzer.KindMinLength])
	}
	if altsByKind[analyzer.KindMinimum] != 1 {
		t.Fatalf("minimum alt = %d, want 1", altsByKind[analyzer.KindMinimum])
	}
}

func TestAnalyze_IgnoresConstraintsInvalidForType(t *testing.T) {
	// pattern on an integer must be ignored, not reported
	cs := analyze(t, `{
	  "type": "object",
	  "properties": {"n": {"type": "integer", "pattern": "^x$"}}
	}`)
	for _, c := range cs {
		if c.Kind == analyzer.KindPattern {
			t.Fatalf("pattern constraint leaked through on integer node: %+v", c)
		}
	}
}

func TestAnalyze_DeterministicOrder(t *testing.T) {
	const raw = `{
	  "type": "object",
	  "properties": {
	    "b": {"type": "string"},
	    "a": {"type": "integer", "minimum": 0},
	    "c": {"type": "boolean"}
	  },
	  "required": ["b"]
	}`
	first := analyze(t, raw)
	second := analyze(t, raw)
	if diff := cmp.Diff(kindsByPath(first), kindsByPath(second)); diff != "" {
		t.Fatalf("two runs disagree:\n%s", diff)
	}
	// sorted property order: a before b before c
	if first[0].Path.String() != "a" {
		t.Fatalf("first constraint path = %s, want a", first[0].Path)
	}
}
