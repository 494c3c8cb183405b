// Package generator turns the constraints of a tool's input schema into
// categorized test cases. Each case mutates exactly one field while every
// sibling stays at its minimal valid value, so a failing case points at a
// single constraint.
package generator

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"mcp-qa/internal/analyzer"
	"mcp-qa/internal/schema"
)

// Category is the bucket a generated case lands in. Buckets map one-to-one
// onto output files (<tool>_<bucket>.yaml).
type Category string

const (
	CategoryValid   Category = "valid"
	CategoryInvalid Category = "invalid"
	CategoryEdge    Category = "edge"
	CategoryTypes   Category = "types"
)

// Depth controls how far boundary-value derivation recurses.
type Depth string

const (
	// DepthMinimal derives boundary cases for top-level fields only.
	// Required, enum, pattern and type cases are always derived at any depth.
	DepthMinimal Depth = "minimal"
	// DepthDeep also derives boundary cases for nested objects, array items
	// and union alternatives.
	DepthDeep Depth = "deep"
)

// Case is one generated test input with its expected outcome. Cases are
// immutable once generated.
type Case struct {
	Name     string
	Path     schema.FieldPath
	Category Category
	Input    map[string]any
	Outcome  Outcome
}

// Outcome is the expected result of calling the tool with the case input.
type Outcome struct {
	Success bool
	// ErrorContains is the substring the error message must carry, normally
	// the violated field's name.
	ErrorContains string
}

// Options configures one generation run.
type Options struct {
	Depth Depth // defaults to DepthMinimal
}

// Result is the full output of generating cases for one tool.
type Result struct {
	Tool   string
	Cases  []Case
	Issues []schema.Error
	// Warnings records cases dropped by the schema self-check and other
	// non-fatal conditions.
	Warnings []string
}

// Generate derives cases for one tool from its raw JSON input schema.
// Generation is deterministic: the same schema bytes yield the same case
// list in the same order.
func Generate(tool string, rawSchema []byte, opts Options) (*Result, error) {
	root, issues, err := schema.Parse(rawSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", tool, err)
	}
	if opts.Depth == "" {
		opts.Depth = DepthMinimal
	}

	g := &gen{tool: tool, root: root, depth: opts.Depth}
	g.add(Case{
		Name:     "minimal valid input",
		Category: CategoryValid,
		Input:    minimalObject(root),
		Outcome:  Outcome{Success: true},
	})
	for _, c := range analyzer.Analyze(root) {
		g.constraint(c)
	}

	res := &Result{Tool: tool, Cases: g.cases, Issues: issues}
	res.Cases, res.Warnings = selfCheck(rawSchema, res.Cases)
	return res, nil
}

type gen struct {
	tool  string
	root  *schema.Node
	depth Depth
	cases []Case
}

func (g *gen) add(c Case) { g.cases = append(g.cases, c) }

// nested reports whether a constraint sits below the top-level fields.
func nested(c analyzer.Constraint) bool {
	if c.Alt >= 0 || len(c.Path) > 1 {
		return true
	}
	for _, s := range c.Path {
		if s.Item {
			return true
		}
	}
	return false
}

func (g *gen) constraint(c analyzer.Constraint) {
	boundary := g.depth == DepthDeep || !nested(c)

	switch c.Kind {
	case analyzer.KindRequired:
		g.required(c)
	case analyzer.KindMinimum:
		if boundary {
			g.minimum(c)
		}
	case analyzer.KindMaximum:
		if boundary {
			g.maximum(c)
		}
	case analyzer.KindMinLength:
		if boundary {
			g.minLength(c)
		}
	case analyzer.KindMaxLength:
		if boundary {
			g.maxLength(c)
		}
	case analyzer.KindMinItems:
		if boundary {
			g.minItems(c)
		}
	case analyzer.KindMaxItems:
		if boundary {
			g.maxItems(c)
		}
	case analyzer.KindPattern:
		g.pattern(c)
	case analyzer.KindEnum:
		g.enum(c)
	case analyzer.KindType:
		g.types(c)
	case analyzer.KindUnion:
		g.union(c)
	}
}

// caseFor builds a full input envelope with the constrained field set to v,
// holding every sibling at its minimal valid value.
func (g *gen) caseFor(c analyzer.Constraint, name string, cat Category, v any, success bool) {
	input := compose(g.root, c.Path, c.Alt, v, false)
	out := Outcome{Success: success}
	if !success {
		out.ErrorContains = fieldName(c.Path, g.tool)
	}
	g.add(Case{Name: label(c.Path, name), Path: c.Path, Category: cat, Input: input, Outcome: out})
}

func (g *gen) required(c analyzer.Constraint) {
	input := compose(g.root, c.Path, c.Alt, nil, true)
	g.add(Case{
		Name:     label(c.Path, "required field omitted"),
		Path:     c.Path,
		Category: CategoryInvalid,
		Input:    input,
		Outcome:  Outcome{ErrorContains: fieldName(c.Path, g.tool)},
	})
}

func (g *gen) minimum(c analyzer.Constraint) {
	n := c.Node
	edge := *n.Minimum
	bad := *n.Minimum - 1
	if n.ExclusiveMin {
		edge = *n.Minimum + 1
		bad = *n.Minimum
	}
	g.caseFor(c, "at minimum", CategoryEdge, numeric(n, edge), true)
	g.caseFor(c, "below minimum", CategoryInvalid, numeric(n, bad), false)
}

func (g *gen) maximum(c analyzer.Constraint) {
	n := c.Node
	edge := *n.Maximum
	bad := *n.Maximum + 1
	if n.ExclusiveMax {
		edge = *n.Maximum - 1
		bad = *n.Maximum
	}
	g.caseFor(c, "at maximum", CategoryEdge, numeric(n, edge), true)
	g.caseFor(c, "above maximum", CategoryInvalid, numeric(n, bad), false)
}

func (g *gen) minLength(c analyzer.Constraint) {
	min := *c.Node.MinLength
	g.caseFor(c, "at min length", CategoryEdge, stringOfLength(c.Node, min), true)
	// the empty string is valid when min is zero, so there is no shorter input
	if min > 0 {
		g.caseFor(c, "below min length", CategoryInvalid, stringOfLength(c.Node, min-1), false)
	}
}

func (g *gen) maxLength(c analyzer.Constraint) {
	max := *c.Node.MaxLength
	g.caseFor(c, "at max length", CategoryEdge, stringOfLength(c.Node, max), true)
	g.caseFor(c, "above max length", CategoryInvalid, stringOfLength(c.Node, max+1), false)
}

func (g *gen) minItems(c analyzer.Constraint) {
	min := *c.Node.MinItems
	g.caseFor(c, "at min items", CategoryEdge, arrayOfLength(c.Node, min), true)
	if min > 0 {
		g.caseFor(c, "below min items", CategoryInvalid, arrayOfLength(c.Node, min-1), false)
	}
}

func (g *gen) maxItems(c analyzer.Constraint) {
	max := *c.Node.MaxItems
	g.caseFor(c, "at max items", CategoryEdge, arrayOfLength(c.Node, max), true)
	g.caseFor(c, "above max items", CategoryInvalid, arrayOfLength(c.Node, max+1), false)
}

func (g *gen) pattern(c analyzer.Constraint) {
	g.caseFor(c, "matches pattern", CategoryValid, patternSample(c.Node.Pattern), true)
	if bad, ok := patternCounterexample(c.Node.Pattern); ok {
		g.caseFor(c, "violates pattern", CategoryInvalid, bad, false)
	}
}

func (g *gen) enum(c analyzer.Constraint) {
	for i, v := range c.Node.Enum {
		g.caseFor(c, fmt.Sprintf("enum value %d", i), CategoryValid, v, true)
	}
	g.caseFor(c, "outside enum", CategoryInvalid, outsideEnum(c.Node.Enum), false)
}

func (g *gen) types(c analyzer.Constraint) {
	for _, v := range typeViolations(c.Node.Type) {
		name := fmt.Sprintf("given %s instead of %s", jsonKind(v), c.Node.Type)
		input := compose(g.root, c.Path, c.Alt, v, false)
		g.add(Case{
			Name:     label(c.Path, name),
			Path:     c.Path,
			Category: CategoryTypes,
			Input:    input,
			Outcome:  Outcome{ErrorContains: fieldName(c.Path, g.tool)},
		})
	}
}

func (g *gen) union(c analyzer.Constraint) {
	for i, alt := range c.Node.Alternatives {
		input := compose(g.root, c.Path, i, minimalValue(alt), false)
		g.add(Case{
			Name:     label(c.Path, fmt.Sprintf("matches alternative %d", i)),
			Path:     c.Path,
			Category: CategoryValid,
			Input:    input,
			Outcome:  Outcome{Success: true},
		})
	}
	// allOf has no "matches neither" negative: its alternatives conjoin
	if c.Node.Union == schema.UnionAllOf {
		return
	}
	bad := unionMismatch(c.Node)
	input := compose(g.root, c.Path, -1, bad, false)
	g.add(Case{
		Name:     label(c.Path, "matches no alternative"),
		Path:     c.Path,
		Category: CategoryInvalid,
		Input:    input,
		Outcome:  Outcome{ErrorContains: fieldName(c.Path, g.tool)},
	})
}

// ---- envelope composition ----

// compose builds an input document where the node at path carries v and
// every other populated field is a required sibling at its minimal value.
// With omit set, the final path segment is left out instead.
func compose(root *schema.Node, path schema.FieldPath, alt int, v any, omit bool) map[string]any {
	out := composeNode(root, path, alt, v, omit)
	if obj, ok := out.(map[string]any); ok {
		return obj
	}
	// a non-object root cannot carry tool arguments; should not happen for
	// MCP input schemas
	return map[string]any{}
}

func composeNode(n *schema.Node, path schema.FieldPath, alt int, v any, omit bool) any {
	if n == nil {
		return v
	}
	if n.Type == schema.TypeUnion {
		pick := 0
		if alt >= 0 && alt < len(n.Alternatives) {
			pick = alt
		}
		if len(n.Alternatives) == 0 {
			return v
		}
		return composeNode(n.Alternatives[pick], path, -1, v, omit)
	}
	if len(path) == 0 {
		return v
	}

	seg := path[0]
	if seg.Item {
		count := 1
		if n.MinItems != nil && *n.MinItems > 1 {
			count = *n.MinItems
		}
		arr := make([]any, count)
		arr[0] = composeNode(n.Items, path[1:], alt, v, omit)
		for i := 1; i < count; i++ {
			arr[i] = minimalValue(n.Items)
		}
		return arr
	}

	obj := map[string]any{}
	for _, name := range n.PropOrder {
		if child := n.Properties[name]; child.Required && name != seg.Key {
			obj[name] = minimalValue(child)
		}
	}
	if omit && len(path) == 1 {
		return obj
	}
	obj[seg.Key] = composeNode(n.Properties[seg.Key], path[1:], alt, v, omit)
	return obj
}

func label(p schema.FieldPath, name string) string {
	if len(p) == 0 {
		return name
	}
	return p.String() + ": " + name
}

// fieldName picks the error-message substring an invalid case expects: the
// violated field's name, or the tool name for root-level violations.
func fieldName(p schema.FieldPath, tool string) string {
	if leaf := p.Leaf(); leaf != "" {
		return leaf
	}
	return tool
}

// ---- self-check ----

// selfCheck validates every Valid and Edge input against the source schema
// before it is written out. A synthesized input the schema itself rejects is
// dropped with a warning rather than emitted as a false failure.
func selfCheck(raw []byte, cases []Case) ([]Case, []string) {
	var sch openapi3.Schema
	if err := sch.UnmarshalJSON(raw); err != nil {
		return cases, []string{fmt.Sprintf("self-check skipped: %v", err)}
	}

	var warnings []string
	kept := cases[:0]
	for _, c := range cases {
		if c.Category != CategoryValid && c.Category != CategoryEdge {
			kept = append(kept, c)
			continue
		}
		if err := sch.VisitJSON(roundTrip(c.Input)); err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped %q: %v", c.Name, err))
			continue
		}
		kept = append(kept, c)
	}
	return kept, warnings
}

// roundTrip rewrites synthesized values into JSON-decoded shapes (float64
// numbers) that the schema validator expects.
func roundTrip(v map[string]any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int:
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
