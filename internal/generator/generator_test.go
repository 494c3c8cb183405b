package generator_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mcp-qa/internal/generator"
	"mcp-qa/internal/parser"
)

const querySchema = `{
  "type": "object",
  "properties": {
    "sql":   {"type": "string"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 1000, "default": 50}
  },
  "required": ["sql"]
}`

func generate(t *testing.T, tool, raw string, opts generator.Options) *generator.Result {
	t.Helper()
	res, err := generator.Generate(tool, []byte(raw), opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return res
}

func findCase(t *testing.T, res *generator.Result, name string) generator.Case {
	t.Helper()
	for _, c := range res.Cases {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no case named %q; have %v", name, caseNames(res))
	return generator.Case{}
}

func caseNames(res *generator.Result) []string {
	out := make([]string, len(res.Cases))
	for i, c := range res.Cases {
		out[i] = c.Name
	}
	return out
}

func TestGenerate_QueryTool(t *testing.T) {
	res := generate(t, "query", querySchema, generator.Options{})

	if len(res.Warnings) > 0 {
		t.Fatalf("self-check dropped cases: %v", res.Warnings)
	}

	valid := findCase(t, res, "minimal valid input")
	if valid.Category != generator.CategoryValid {
		t.Fatalf("minimal case in bucket %s", valid.Category)
	}
	if _, ok := valid.Input["sql"]; !ok {
		t.Fatal("minimal valid input must populate sql")
	}
	if _, ok := valid.Input["limit"]; ok {
		t.Fatal("minimal valid input must omit the optional limit")
	}

	omitted := findCase(t, res, "sql: required field omitted")
	if _, ok := omitted.Input["sql"]; ok {
		t.Fatal("omission case still carries sql")
	}
	if omitted.Outcome.ErrorContains != "sql" {
		t.Fatalf("omission expects %q, want sql", omitted.Outcome.ErrorContains)
	}

	atMin := findCase(t, res, "limit: at minimum")
	if diff := cmp.Diff(map[string]any{"sql": "a", "limit": 1}, atMin.Input); diff != "" {
		t.Fatalf("at minimum input (-want +got):\n%s", diff)
	}
	atMax := findCase(t, res, "limit: at maximum")
	if atMax.Input["limit"] != 1000 || atMax.Category != generator.CategoryEdge {
		t.Fatalf("at maximum = %+v", atMax)
	}

	belowMin := findCase(t, res, "limit: below minimum")
	if belowMin.Input["limit"] != 0 {
		t.Fatalf("below minimum limit = %v, want 0", belowMin.Input["limit"])
	}
	aboveMax := findCase(t, res, "limit: above maximum")
	if aboveMax.Input["limit"] != 1001 || aboveMax.Outcome.ErrorContains != "limit" {
		t.Fatalf("above maximum = %+v", aboveMax)
	}
	if _, ok := aboveMax.Input["sql"]; !ok {
		t.Fatal("single-fault isolation: required sibling sql must stay populated")
	}

	wrongType := findCase(t, res, "sql: given number instead of string")
	if wrongType.Category != generator.CategoryTypes {
		t.Fatalf("type violation in bucket %s", wrongType.Category)
	}
	if wrongType.Input["sql"] != 12345 {
		t.Fatalf("type violation sql = %v", wrongType.Input["sql"])
	}
}

func TestGenerate_OneOmissionPerRequiredField(t *testing.T) {
	raw := `{
	  "type": "object",
	  "properties": {"a": {"type": "string"}, "b": {"type": "integer"}, "c": {"type": "boolean"}},
	  "required": ["a", "b"]
	}`
	res := generate(t, "multi", raw, generator.Options{})

	var omissions []generator.Case
	for _, c := range res.Cases {
		if strings.HasSuffix(c.Name, "required field omitted") {
			omissions = append(omissions, c)
		}
	}
	if len(omissions) != 2 {
		t.Fatalf("omission cases = %d, want one per required field", len(omissions))
	}
	for _, c := range omissions {
		target := c.Path.String()
		if _, ok := c.Input[target]; ok {
			t.Fatalf("case %q still carries %s", c.Name, target)
		}
		for _, other := range []string{"a", "b"} {
			if other == target {
				continue
			}
			if _, ok := c.Input[other]; !ok {
				t.Fatalf("case %q also dropped required field %s", c.Name, other)
			}
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	first := generate(t, "query", querySchema, generator.Options{})
	second := generate(t, "query", querySchema, generator.Options{})
	if diff := cmp.Diff(first.Cases, second.Cases); diff != "" {
		t.Fatalf("two runs over the same schema differ:\n%s", diff)
	}

	// regenerating against an unchanged schema must be byte-identical
	dirA, dirB := t.TempDir(), t.TempDir()
	pathsA, err := first.WriteFiles(dirA, "http://test")
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	pathsB, err := second.WriteFiles(dirB, "http://test")
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	if len(pathsA) != len(pathsB) {
		t.Fatalf("file counts differ: %d vs %d", len(pathsA), len(pathsB))
	}
	for i := range pathsA {
		a, err := os.ReadFile(pathsA[i])
		if err != nil {
			t.Fatalf("read %s: %v", pathsA[i], err)
		}
		b, err := os.ReadFile(pathsB[i])
		if err != nil {
			t.Fatalf("read %s: %v", pathsB[i], err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("%s differs between regenerations:\n%s\n----\n%s",
				filepath.Base(pathsA[i]), a, b)
		}
	}
}

func TestGenerate_EnumAndPattern(t *testing.T) {
	raw := `{
	  "type": "object",
	  "properties": {
	    "mode": {"type": "string", "enum": ["read", "write"]},
	    "id":   {"type": "string", "pattern": "^[a-z]+-[0-9]+$"}
	  },
	  "required": ["mode", "id"]
	}`
	res := generate(t, "open", raw, generator.Options{})

	for i, want := range []string{"read", "write"} {
		c := findCase(t, res, "mode: enum value "+string(rune('0'+i)))
		if c.Input["mode"] != want || c.Category != generator.CategoryValid {
			t.Fatalf("enum case %d = %+v", i, c)
		}
	}
	outside := findCase(t, res, "mode: outside enum")
	if outside.Input["mode"] == "read" || outside.Input["mode"] == "write" {
		t.Fatalf("outside-enum value %v is in the set", outside.Input["mode"])
	}

	match := findCase(t, res, "id: matches pattern")
	if s, _ := match.Input["id"].(string); !strings.Contains(s, "-") {
		t.Fatalf("pattern sample %q cannot match ^[a-z]+-[0-9]+$", s)
	}
	violate := findCase(t, res, "id: violates pattern")
	if violate.Outcome.ErrorContains != "id" {
		t.Fatalf("pattern violation expects %q", violate.Outcome.ErrorContains)
	}
}

func TestGenerate_DepthControlsNestedBoundaries(t *testing.T) {
	raw := `{
	  "type": "object",
	  "properties": {
	    "filters": {
	      "type": "object",
	      "properties": {"name": {"type": "string", "minLength": 3}},
	      "required": ["name"]
	    }
	  },
	  "required": ["filters"]
	}`

	minimal := generate(t, "search", raw, generator.Options{Depth: generator.DepthMinimal})
	for _, c := range minimal.Cases {
		if strings.HasPrefix(c.Name, "filters.name: at min length") {
			t.Fatal("minimal depth must not derive nested boundary cases")
		}
	}

	deep := generate(t, "search", raw, generator.Options{Depth: generator.DepthDeep})
	c := findCase(t, deep, "filters.name: at min length")
	filters, ok := c.Input["filters"].(map[string]any)
	if !ok {
		t.Fatalf("nested envelope missing: %v", c.Input)
	}
	if name, _ := filters["name"].(string); len(name) != 3 {
		t.Fatalf("nested min-length value %q, want length 3", filters["name"])
	}
}

func TestGenerate_Union(t *testing.T) {
	raw := `{
	  "type": "object",
	  "properties": {
	    "target": {"oneOf": [{"type": "string"}, {"type": "integer", "minimum": 1}]}
	  },
	  "required": ["target"]
	}`
	res := generate(t, "route", raw, generator.Options{})

	alt0 := findCase(t, res, "target: matches alternative 0")
	if _, ok := alt0.Input["target"].(string); !ok {
		t.Fatalf("alternative 0 value %v is not a string", alt0.Input["target"])
	}
	alt1 := findCase(t, res, "target: matches alternative 1")
	if _, ok := alt1.Input["target"].(int); !ok {
		t.Fatalf("alternative 1 value %v is not an integer", alt1.Input["target"])
	}

	none := findCase(t, res, "target: matches no alternative")
	switch none.Input["target"].(type) {
	case string, int, float64:
		t.Fatalf("no-alternative value %v matches a covered kind", none.Input["target"])
	}
	if none.Category != generator.CategoryInvalid {
		t.Fatalf("no-alternative case in bucket %s", none.Category)
	}
}

func TestGenerate_MalformedConstraintIsNonFatal(t *testing.T) {
	raw := `{
	  "type": "object",
	  "properties": {"a": {"type": "string"}},
	  "required": ["a", "ghost"]
	}`
	res := generate(t, "sloppy", raw, generator.Options{})
	if len(res.Issues) != 1 {
		t.Fatalf("issues = %v, want the unknown required property reported", res.Issues)
	}
	findCase(t, res, "a: required field omitted")
	for _, c := range res.Cases {
		if strings.HasPrefix(c.Name, "ghost") {
			t.Fatalf("case generated for unknown property: %q", c.Name)
		}
	}
}

func TestWriteFiles_RoundTripsThroughParser(t *testing.T) {
	res := generate(t, "query", querySchema, generator.Options{})

	dir := t.TempDir()
	written, err := res.WriteFiles(dir, "http://localhost:8080/mcp")
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "query_valid.yaml"),
		filepath.Join(dir, "query_invalid.yaml"),
		filepath.Join(dir, "query_edge.yaml"),
		filepath.Join(dir, "query_types.yaml"),
	}
	if diff := cmp.Diff(want, written); diff != "" {
		t.Fatalf("written files (-want +got):\n%s", diff)
	}

	scenarios, err := parser.New().LoadGlob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		t.Fatalf("generated files do not parse: %v", err)
	}
	if len(scenarios) != 4 {
		t.Fatalf("loaded %d scenarios, want 4", len(scenarios))
	}
	for _, sc := range scenarios {
		if sc.Server.URL != "http://localhost:8080/mcp" {
			t.Fatalf("scenario %q lost the server URL", sc.Name)
		}
		for _, step := range sc.Steps {
			if step.Tool != "query" {
				t.Fatalf("step %q targets tool %q", step.Name, step.Tool)
			}
		}
	}
}

func TestInventory(t *testing.T) {
	res := generate(t, "query", querySchema, generator.Options{})
	inv := res.Inventory()
	for _, want := range []string{"query_valid.yaml", "query_invalid.yaml", "query_edge.yaml", "query_types.yaml", "minimal valid input"} {
		if !strings.Contains(inv, want) {
			t.Fatalf("inventory missing %q:\n%s", want, inv)
		}
	}
}
