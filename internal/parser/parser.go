package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mcp-qa/internal/ir"
)

var ErrValidation = errors.New("validation error")

type Parser struct {
	lookupEnv func(string) (string, bool)
}

func New() *Parser { return &Parser{lookupEnv: os.LookupEnv} }

// NewWithEnv uses a custom environment lookup. Tests use this instead of
// mutating the process environment.
func NewWithEnv(lookup func(string) (string, bool)) *Parser {
	return &Parser{lookupEnv: lookup}
}

// ParseBytes parses one scenario document and validates it. Environment
// references are resolved before decoding; runtime ${var} tokens are left
// untouched for the executor.
func (p *Parser) ParseBytes(b []byte) (*ir.Scenario, error) {
	b = p.expandEnv(b)

	var sc ir.Scenario
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true) // fail on unknown fields

	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile parses a single scenario file.
func (p *Parser) LoadFile(path string) (*ir.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sc, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.Source = path
	return sc, nil
}

// LoadGlob loads every scenario matching the pattern, sorted by path so runs
// are deterministic. A directory is expanded to all YAML files beneath it.
func (p *Parser) LoadGlob(pattern string) ([]*ir.Scenario, error) {
	info, err := os.Stat(pattern)
	if err == nil && info.IsDir() {
		return p.loadDir(pattern)
	}

	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files match %q", pattern)
	}
	sort.Strings(paths)

	out := make([]*ir.Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := p.LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (p *Parser) loadDir(dir string) ([]*ir.Scenario, error) {
	var out []*ir.Scenario
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}
		sc, err := p.LoadFile(path)
		if err != nil {
			return err
		}
		out = append(out, sc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenario files under %s", dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func isYAMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ---- environment references ----

// envPattern matches ${NAME} and ${NAME:-default}. Only ALL_CAPS names or
// tokens carrying a default are treated as environment references; lowercase
// ${var} tokens belong to the runtime capture store.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

func (p *Parser) expandEnv(b []byte) []byte {
	return envPattern.ReplaceAllFunc(b, func(m []byte) []byte {
		groups := envPattern.FindSubmatch(m)
		name := string(groups[1])
		hasDefault := len(groups[2]) > 0

		if !hasDefault && !isEnvName(name) {
			return m // runtime variable, leave for the executor
		}
		if v, ok := p.lookupEnv(name); ok {
			return []byte(v)
		}
		if hasDefault {
			return groups[3]
		}
		return m // unset and no default: surfaces as an unresolved variable later
	})
}

func isEnvName(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	return true
}

// ---- validation ----

func validateScenario(sc *ir.Scenario) error {
	if sc.Name == "" {
		return wrapValidation("scenario.name must not be empty")
	}
	if len(sc.Steps) == 0 {
		return wrapValidation(fmt.Sprintf("scenario %q: steps must not be empty", sc.Name))
	}
	for i := range sc.Setup {
		if err := validateStep(&sc.Setup[i], "setup", i); err != nil {
			return err
		}
	}
	for i := range sc.Steps {
		if err := validateStep(&sc.Steps[i], "steps", i); err != nil {
			return err
		}
	}
	for i := range sc.Teardown {
		if err := validateStep(&sc.Teardown[i], "teardown", i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(st *ir.Step, section string, idx int) error {
	where := fmt.Sprintf("%s[%d]", section, idx)
	if st.Tool == "" {
		return wrapValidation(where + ".tool must not be empty")
	}
	if st.Retry != nil && st.Retry.Count < 0 {
		return wrapValidation(where + ".retry.count must not be negative")
	}
	if err := validateExpect(&st.Expect, where+".expect"); err != nil {
		return err
	}
	for name, path := range st.Capture {
		if name == "" || path == "" {
			return wrapValidation(where + ".capture entries need a variable name and a path")
		}
	}
	return nil
}

func validateExpect(e *ir.Expect, where string) error {
	if e.Error != nil && hasSuccessAssertions(e) {
		return wrapValidation(where + ": error expectation cannot be combined with success assertions")
	}
	for field, pattern := range e.Matches {
		if _, err := regexp.Compile(pattern); err != nil {
			return wrapValidation(fmt.Sprintf("%s.matches[%s]: bad pattern: %v", where, field, err))
		}
	}
	if e.Error != nil && e.Error.MessageMatches != "" {
		if _, err := regexp.Compile(e.Error.MessageMatches); err != nil {
			return wrapValidation(fmt.Sprintf("%s.error.message_matches: bad pattern: %v", where, err))
		}
	}
	if e.Array != nil {
		if e.Array.AllMatch != nil {
			if e.Array.AllMatch.Error != nil {
				return wrapValidation(where + ".array.all_match cannot contain an error expectation")
			}
			if err := validateExpect(e.Array.AllMatch, where+".array.all_match"); err != nil {
				return err
			}
		}
		if e.Array.AnyMatch != nil {
			if e.Array.AnyMatch.Error != nil {
				return wrapValidation(where + ".array.any_match cannot contain an error expectation")
			}
			if err := validateExpect(e.Array.AnyMatch, where+".array.any_match"); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasSuccessAssertions(e *ir.Expect) bool {
	return e.Equals != nil || len(e.Contains) > 0 || len(e.Types) > 0 ||
		len(e.Matches) > 0 || len(e.Compare) > 0 || e.Array != nil
}

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
