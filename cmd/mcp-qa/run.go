package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mcp-qa/internal/client"
	"mcp-qa/internal/executor"
	"mcp-qa/internal/ir"
	"mcp-qa/internal/parser"
	"mcp-qa/internal/reporter"
)

func newRunCmd() *cobra.Command {
	var (
		server       string
		transport    string
		headers      []string
		scenarioPath string
		pattern      string
		parallel     int
		failFast     bool
		format       string
		output       string
		htmlPath     string
		coveragePath string
		includeTags  string
		excludeTags  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute YAML scenarios against an MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "junit" && format != "tap" {
				return fmt.Errorf("--format must be json, junit or tap, got %q", format)
			}

			hdrs, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			scenarios, aborted, err := loadScenarios(scenarioPath, pattern)
			if err != nil {
				return err
			}
			scenarios = filterByTags(scenarios, splitCSV(includeTags), splitCSV(excludeTags))
			if len(scenarios) == 0 && len(aborted) == 0 {
				return fmt.Errorf("no scenarios to run")
			}

			ctx := cmd.Context()
			runner := executor.New().
				WithServer(server).
				WithTransport(transport).
				WithHeaders(hdrs).
				WithParallel(parallel).
				WithFailFast(failFast).
				WithLogger(slog.Default())

			report := runner.Run(ctx, scenarios)
			if len(aborted) > 0 {
				report.Scenarios = append(report.Scenarios, aborted...)
				report.Passed = false
			}

			if err := writeReport(format, output, report); err != nil {
				return err
			}
			if htmlPath != "" {
				if err := writeFile(htmlPath, func(w io.Writer) error {
					return reporter.WriteHTML(w, "mcp-qa", report)
				}); err != nil {
					return err
				}
			}
			if coveragePath != "" {
				if err := writeCoverage(cmd, server, transport, hdrs, coveragePath, report); err != nil {
					return err
				}
			}

			// human summary goes to stderr so stdout stays machine-readable
			if err := reporter.WriteConsole(os.Stderr, report); err != nil {
				return err
			}
			if reporter.ExitCode(report) != 0 {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "MCP server URL (overrides scenario server.url)")
	cmd.Flags().StringVar(&transport, "transport", "", "transport: streamable-http (default) or sse")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "extra HTTP header as key=value (repeatable)")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "run a single scenario file")
	cmd.Flags().StringVar(&pattern, "pattern", "scenarios/*.yaml", "glob of scenario files")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "scenarios to execute in parallel")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop after the first failing scenario (forces --parallel=1)")
	cmd.Flags().StringVar(&format, "format", "json", "report format: json, junit or tap")
	cmd.Flags().StringVar(&output, "output", "", "report file (default: stdout)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "also write an HTML report to this file")
	cmd.Flags().StringVar(&coveragePath, "coverage", "", "also write a tool-coverage report to this file")
	cmd.Flags().StringVar(&includeTags, "include-tags", "", "comma-separated tags to include (OR semantics)")
	cmd.Flags().StringVar(&excludeTags, "exclude-tags", "", "comma-separated tags to exclude (OR semantics)")
	return cmd
}

// loadScenarios resolves --scenario / --pattern into parsed scenarios.
// Files the parser rejects become aborted results instead of killing the
// whole run.
func loadScenarios(scenarioPath, pattern string) ([]*ir.Scenario, []executor.ScenarioResult, error) {
	var paths []string
	if scenarioPath != "" {
		paths = []string{scenarioPath}
	} else {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, nil, fmt.Errorf("no files match %q", pattern)
		}
		sort.Strings(matches)
		paths = matches
	}

	p := parser.New()
	var scenarios []*ir.Scenario
	var aborted []executor.ScenarioResult
	for _, path := range paths {
		sc, err := p.LoadFile(path)
		if err != nil {
			aborted = append(aborted, executor.AbortedResult(filepath.Base(path), path, err))
			continue
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, aborted, nil
}

func filterByTags(in []*ir.Scenario, include, exclude []string) []*ir.Scenario {
	if len(include) == 0 && len(exclude) == 0 {
		return in
	}
	toSet := func(ss []string) map[string]bool {
		m := map[string]bool{}
		for _, s := range ss {
			m[strings.ToLower(s)] = true
		}
		return m
	}
	inc, exc := toSet(include), toSet(exclude)
	hasAny := func(tags []string, m map[string]bool) bool {
		for _, t := range tags {
			if m[strings.ToLower(t)] {
				return true
			}
		}
		return false
	}
	out := make([]*ir.Scenario, 0, len(in))
	for _, sc := range in {
		if len(inc) > 0 && !hasAny(sc.Tags, inc) {
			continue
		}
		if len(exc) > 0 && hasAny(sc.Tags, exc) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

func writeReport(format, output string, report *executor.RunReport) error {
	write := func(w io.Writer) error {
		switch format {
		case "junit":
			return reporter.WriteJUnit(w, report)
		case "tap":
			return reporter.WriteTAP(w, report)
		default:
			return reporter.WriteJSON(w, report)
		}
	}
	if output == "" {
		return write(os.Stdout)
	}
	return writeFile(output, write)
}

func writeCoverage(cmd *cobra.Command, server, transport string, headers map[string]string, path string, report *executor.RunReport) error {
	if server == "" {
		return fmt.Errorf("--coverage needs --server to list the advertised tools")
	}
	c, err := client.Connect(cmd.Context(), server, client.Options{Transport: transport, Headers: headers})
	if err != nil {
		return fmt.Errorf("connect for coverage: %w", err)
	}
	defer c.Close()

	tools, err := c.ListTools(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return writeFile(path, func(w io.Writer) error {
		return reporter.WriteCoverage(w, names, report)
	})
}

func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return fn(f)
}
