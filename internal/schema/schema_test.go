package schema_test

import (
	"testing"

	"mcp-qa/internal/schema"
)

const querySchema = `{
  "type": "object",
  "properties": {
    "sql":   {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 1, "maximum": 1000, "default": 50}
  },
  "required": ["sql"]
}`

func TestParse_QueryTool(t *testing.T) {
	node, issues, err := schema.Parse([]byte(querySchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if node.Type != schema.TypeObject {
		t.Fatalf("root type = %s, want object", node.Type)
	}

	sql := node.Properties["sql"]
	if sql == nil || sql.Type != schema.TypeString {
		t.Fatalf("sql node = %+v", sql)
	}
	if !sql.Required {
		t.Fatal("sql should be required")
	}
	if sql.MinLength == nil || *sql.MinLength != 1 {
		t.Fatalf("sql.MinLength = %v", sql.MinLength)
	}

	limit := node.Properties["limit"]
	if limit == nil || limit.Type != schema.TypeInteger {
		t.Fatalf("limit node = %+v", limit)
	}
	if limit.Required {
		t.Fatal("limit should not be required")
	}
	if *limit.Minimum != 1 || *limit.Maximum != 1000 {
		t.Fatalf("limit bounds = %v..%v", *limit.Minimum, *limit.Maximum)
	}
	if limit.Default != float64(50) {
		t.Fatalf("limit default = %v", limit.Default)
	}
}

func TestParse_RequiredUnknownPropertyIsNonFatal(t *testing.T) {
	node, issues, err := schema.Parse([]byte(`{
	  "type": "object",
	  "properties": {"a": {"type": "string"}},
	  "required": ["a", "ghost"]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("issues = %v, want exactly one", issues)
	}
	if !node.Properties["a"].Required {
		t.Fatal("a should still be marked required")
	}
}

func TestParse_UnionAndArray(t *testing.T) {
	node, issues, err := schema.Parse([]byte(`{
	  "type": "object",
	  "properties": {
	    "target": {"oneOf": [{"type": "string"}, {"type": "integer"}]},
	    "tags":   {"type": "array", "items": {"type": "string", "maxLength": 8}, "minItems": 1, "maxItems": 3}
	  }
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}

	target := node.Properties["target"]
	if target.Type != schema.TypeUnion || target.Union != schema.UnionOneOf {
		t.Fatalf("target = %+v", target)
	}
	if len(target.Alternatives) != 2 {
		t.Fatalf("alternatives = %d, want 2", len(target.Alternatives))
	}

	tags := node.Properties["tags"]
	if tags.Type != schema.TypeArray || tags.Items == nil {
		t.Fatalf("tags = %+v", tags)
	}
	if *tags.MinItems != 1 || *tags.MaxItems != 3 {
		t.Fatalf("tags bounds = %v..%v", *tags.MinItems, *tags.MaxItems)
	}
	if tags.Items.MaxLength == nil || *tags.Items.MaxLength != 8 {
		t.Fatalf("items.maxLength = %v", tags.Items.MaxLength)
	}
}

func TestParse_Draft7ExclusiveBounds(t *testing.T) {
	node, _, err := schema.Parse([]byte(`{
	  "type": "object",
	  "properties": {"score": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 10}}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	score := node.Properties["score"]
	if *score.Minimum != 0 || !score.ExclusiveMin {
		t.Fatalf("min = %v exclusive=%v", *score.Minimum, score.ExclusiveMin)
	}
	if *score.Maximum != 10 || !score.ExclusiveMax {
		t.Fatalf("max = %v exclusive=%v", *score.Maximum, score.ExclusiveMax)
	}
}

func TestFieldPath(t *testing.T) {
	var p schema.FieldPath
	p = p.Child("filters").Child("tags").Element().Child("name")
	if got := p.String(); got != "filters.tags[].name" {
		t.Fatalf("String() = %q", got)
	}
	if got := p.Leaf(); got != "name" {
		t.Fatalf("Leaf() = %q", got)
	}
}

func TestParse_PropertyOrderIsSorted(t *testing.T) {
	node, _, err := schema.Parse([]byte(`{
	  "type": "object",
	  "properties": {"zeta": {"type": "string"}, "alpha": {"type": "string"}, "mid": {"type": "string"}}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if node.PropOrder[i] != name {
			t.Fatalf("PropOrder = %v, want %v", node.PropOrder, want)
		}
	}
}
