package generator

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mcp-qa/internal/ir"
)

// bucketOrder fixes the emission order of the four case buckets.
var bucketOrder = []Category{CategoryValid, CategoryInvalid, CategoryEdge, CategoryTypes}

var bucketTitles = map[Category]string{
	CategoryValid:   "valid inputs",
	CategoryInvalid: "constraint violations",
	CategoryEdge:    "boundary values",
	CategoryTypes:   "type violations",
}

// Scenario assembles one bucket's cases into a runnable scenario, or nil when
// the bucket is empty.
func (r *Result) Scenario(cat Category, serverURL string) *ir.Scenario {
	var steps []ir.Step
	for _, c := range r.Cases {
		if c.Category != cat {
			continue
		}
		steps = append(steps, ir.Step{
			Name:   c.Name,
			Tool:   r.Tool,
			Input:  c.Input,
			Expect: expectFor(c.Outcome),
		})
	}
	if len(steps) == 0 {
		return nil
	}
	return &ir.Scenario{
		Name:        fmt.Sprintf("%s: generated %s", r.Tool, bucketTitles[cat]),
		Description: fmt.Sprintf("Cases derived from the declared input schema of tool %q.", r.Tool),
		Version:     "1",
		Tags:        []string{"generated", r.Tool},
		Server:      ir.ServerConfig{URL: serverURL},
		Steps:       steps,
	}
}

func expectFor(o Outcome) ir.Expect {
	if o.Success {
		ok := true
		return ir.Expect{Success: &ok}
	}
	e := ir.Expect{Error: &ir.ErrorExpect{}}
	if o.ErrorContains != "" {
		e.Error.MessageContains = o.ErrorContains
	}
	return e
}

// WriteFiles serializes the non-empty buckets as <tool>_<bucket>.yaml under
// dir, creating it if needed, and returns the written paths in bucket order.
func (r *Result) WriteFiles(dir, serverURL string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}

	var written []string
	for _, cat := range bucketOrder {
		sc := r.Scenario(cat, serverURL)
		if sc == nil {
			continue
		}
		data, err := marshalScenario(sc)
		if err != nil {
			return written, fmt.Errorf("serialize %s bucket: %w", cat, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.yaml", r.Tool, cat))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func marshalScenario(sc *ir.Scenario) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inventory renders the case listing a dry run prints instead of writing
// files.
func (r *Result) Inventory() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool %s: %d cases\n", r.Tool, len(r.Cases))
	for _, cat := range bucketOrder {
		var names []string
		for _, c := range r.Cases {
			if c.Category == cat {
				names = append(names, c.Name)
			}
		}
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s_%s.yaml (%d)\n", r.Tool, cat, len(names))
		for _, n := range names {
			fmt.Fprintf(&b, "    - %s\n", n)
		}
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}
