package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Type is the declared JSON type of a schema node.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeUnion   Type = "union" // oneOf / anyOf / allOf
)

// UnionKind distinguishes the composition keyword a union node came from.
type UnionKind string

const (
	UnionOneOf UnionKind = "oneOf"
	UnionAnyOf UnionKind = "anyOf"
	UnionAllOf UnionKind = "allOf"
)

// Node is one node of a parsed tool input schema. Constraint fields that do
// not apply to the node's type may still be populated by a sloppy schema; the
// analyzer ignores them instead of erroring.
type Node struct {
	Type     Type
	Required bool // relative to the parent object

	// shared constraints
	Enum    []any
	Format  string
	Default any

	// string
	MinLength *int
	MaxLength *int
	Pattern   string

	// number / integer
	Minimum      *float64
	Maximum      *float64
	ExclusiveMin bool
	ExclusiveMax bool

	// object: property names are kept sorted so every walk is deterministic
	Properties map[string]*Node
	PropOrder  []string

	// array
	Items    *Node
	MinItems *int
	MaxItems *int

	// union
	Alternatives []*Node
	Union        UnionKind
}

// Error is a non-fatal defect found while parsing a schema. The affected
// constraint is excluded from generation; the rest of the schema survives.
type Error struct {
	Path    string
	Message string
}

func (e Error) Error() string {
	if e.Path == "" {
		return "schema: " + e.Message
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Message)
}

// Parse decodes a raw JSON Schema document (an MCP tool inputSchema) into a
// Node tree. Structural defects such as a required entry naming a missing
// property are collected as Errors, not returned as the error.
func Parse(raw []byte) (*Node, []Error, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("decode schema: %w", err)
	}
	var issues []Error
	node := parseNode(m, "", &issues)
	return node, issues, nil
}

// ParseValue builds a Node tree from an already-decoded schema document.
func ParseValue(m map[string]any, path string) (*Node, []Error) {
	var issues []Error
	node := parseNode(m, path, &issues)
	return node, issues
}

func parseNode(m map[string]any, path string, issues *[]Error) *Node {
	n := &Node{}

	// composition keywords win over a declared type
	for _, kw := range []UnionKind{UnionOneOf, UnionAnyOf, UnionAllOf} {
		alts, ok := m[string(kw)].([]any)
		if !ok {
			continue
		}
		n.Type = TypeUnion
		n.Union = kw
		for i, alt := range alts {
			am, ok := alt.(map[string]any)
			if !ok {
				*issues = append(*issues, Error{Path: path, Message: fmt.Sprintf("%s[%d] is not an object", kw, i)})
				continue
			}
			n.Alternatives = append(n.Alternatives, parseNode(am, fmt.Sprintf("%s<%s:%d>", path, kw, i), issues))
		}
		return n
	}

	switch t, _ := m["type"].(string); t {
	case "string":
		n.Type = TypeString
	case "number":
		n.Type = TypeNumber
	case "integer":
		n.Type = TypeInteger
	case "boolean":
		n.Type = TypeBoolean
	case "array":
		n.Type = TypeArray
	case "object", "":
		// MCP inputSchema roots frequently omit "type"
		n.Type = TypeObject
	default:
		*issues = append(*issues, Error{Path: path, Message: fmt.Sprintf("unsupported type %q", t)})
		n.Type = TypeObject
	}

	n.Format, _ = m["format"].(string)
	n.Default = m["default"]
	if enum, ok := m["enum"].([]any); ok {
		n.Enum = enum
	}
	n.Pattern, _ = m["pattern"].(string)
	n.MinLength = intField(m, "minLength")
	n.MaxLength = intField(m, "maxLength")
	n.Minimum = floatField(m, "minimum")
	n.Maximum = floatField(m, "maximum")
	n.MinItems = intField(m, "minItems")
	n.MaxItems = intField(m, "maxItems")

	// draft-4 style exclusive bounds (booleans); numeric draft-7 style folds
	// into minimum/maximum with the exclusive flag set
	if b, ok := m["exclusiveMinimum"].(bool); ok {
		n.ExclusiveMin = b
	} else if f := floatField(m, "exclusiveMinimum"); f != nil {
		n.Minimum = f
		n.ExclusiveMin = true
	}
	if b, ok := m["exclusiveMaximum"].(bool); ok {
		n.ExclusiveMax = b
	} else if f := floatField(m, "exclusiveMaximum"); f != nil {
		n.Maximum = f
		n.ExclusiveMax = true
	}

	if n.Type == TypeObject {
		props, _ := m["properties"].(map[string]any)
		if len(props) > 0 {
			n.Properties = make(map[string]*Node, len(props))
			for name, raw := range props {
				pm, ok := raw.(map[string]any)
				if !ok {
					*issues = append(*issues, Error{Path: joinPath(path, name), Message: "property is not an object"})
					continue
				}
				n.Properties[name] = parseNode(pm, joinPath(path, name), issues)
				n.PropOrder = append(n.PropOrder, name)
			}
			sort.Strings(n.PropOrder)
		}
		if req, ok := m["required"].([]any); ok {
			for _, r := range req {
				name, ok := r.(string)
				if !ok {
					*issues = append(*issues, Error{Path: path, Message: "required entry is not a string"})
					continue
				}
				child, exists := n.Properties[name]
				if !exists {
					*issues = append(*issues, Error{Path: path, Message: fmt.Sprintf("required references unknown property %q", name)})
					continue
				}
				child.Required = true
			}
		}
	}

	if n.Type == TypeArray {
		if im, ok := m["items"].(map[string]any); ok {
			n.Items = parseNode(im, path+"[]", issues)
		}
	}

	return n
}

func intField(m map[string]any, key string) *int {
	f, ok := m[key].(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func floatField(m map[string]any, key string) *float64 {
	f, ok := m[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// ---- FieldPath ----

// Segment is one step of a FieldPath: either an object key or the array-item
// marker ("[]").
type Segment struct {
	Key  string
	Item bool
}

// FieldPath names a node inside a schema, e.g. "filters.tags[].name".
type FieldPath []Segment

func (p FieldPath) Child(key string) FieldPath {
	out := make(FieldPath, len(p)+1)
	copy(out, p)
	out[len(p)] = Segment{Key: key}
	return out
}

func (p FieldPath) Element() FieldPath {
	out := make(FieldPath, len(p)+1)
	copy(out, p)
	out[len(p)] = Segment{Item: true}
	return out
}

func (p FieldPath) String() string {
	var b strings.Builder
	for _, s := range p {
		if s.Item {
			b.WriteString("[]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

// Leaf returns the last object key on the path, or "" for the root.
func (p FieldPath) Leaf() string {
	for i := len(p) - 1; i >= 0; i-- {
		if !p[i].Item {
			return p[i].Key
		}
	}
	return ""
}
