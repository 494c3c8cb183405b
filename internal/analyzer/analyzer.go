// Package analyzer walks a parsed tool schema and flattens it into the list
// of testable constraints the generator synthesizes cases from.
package analyzer

import (
	"mcp-qa/internal/schema"
)

// Kind identifies a single schema-declared rule on one field.
type Kind string

const (
	KindRequired  Kind = "required"
	KindMinimum   Kind = "minimum"
	KindMaximum   Kind = "maximum"
	KindMinLength Kind = "minLength"
	KindMaxLength Kind = "maxLength"
	KindPattern   Kind = "pattern"
	KindEnum      Kind = "enum"
	KindType      Kind = "type"
	KindMinItems  Kind = "minItems"
	KindMaxItems  Kind = "maxItems"
	KindUnion     Kind = "union"
)

// Constraint is one (FieldPath, rule) pair extracted from the schema.
type Constraint struct {
	Path schema.FieldPath
	Kind Kind
	// Node is the schema node the constraint lives on.
	Node *schema.Node
	// Alt is the index of the union alternative this constraint originated
	// from, or -1 when it is not nested inside a union.
	Alt int
}

// Analyze flattens a schema tree into constraints, recursing into object
// properties, array item schemas and union alternatives. Constraint fields
// that are invalid for a node's declared type are ignored, per the model
// invariant, rather than reported.
func Analyze(root *schema.Node) []Constraint {
	var out []Constraint
	walk(root, nil, -1, &out)
	return out
}

func walk(n *schema.Node, path schema.FieldPath, alt int, out *[]Constraint) {
	if n == nil {
		return
	}

	add := func(k Kind) {
		*out = append(*out, Constraint{Path: path, Kind: k, Node: n, Alt: alt})
	}

	switch n.Type {
	case schema.TypeString:
		add(KindType)
		if n.MinLength != nil {
			add(KindMinLength)
		}
		if n.MaxLength != nil {
			add(KindMaxLength)
		}
		if n.Pattern != "" {
			add(KindPattern)
		}
		if len(n.Enum) > 0 {
			add(KindEnum)
		}

	case schema.TypeNumber, schema.TypeInteger:
		add(KindType)
		if n.Minimum != nil {
			add(KindMinimum)
		}
		if n.Maximum != nil {
			add(KindMaximum)
		}
		if len(n.Enum) > 0 {
			add(KindEnum)
		}

	case schema.TypeBoolean:
		add(KindType)

	case schema.TypeArray:
		add(KindType)
		if n.MinItems != nil {
			add(KindMinItems)
		}
		if n.MaxItems != nil {
			add(KindMaxItems)
		}
		walk(n.Items, path.Element(), alt, out)

	case schema.TypeObject:
		if len(path) > 0 {
			add(KindType)
		}
		for _, name := range n.PropOrder {
			child := n.Properties[name]
			childPath := path.Child(name)
			if child.Required {
				*out = append(*out, Constraint{Path: childPath, Kind: KindRequired, Node: child, Alt: alt})
			}
			walk(child, childPath, alt, out)
		}

	case schema.TypeUnion:
		add(KindUnion)
		for i, a := range n.Alternatives {
			walk(a, path, i, out)
		}
	}
}
