// Command mcp-qa generates schema-derived test cases for an MCP tool server
// and runs YAML scenarios against it.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Exit codes: 0 all scenarios passed, 1 scenario failures, 2 usage or
// configuration errors.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
)

// errRunFailed marks a completed run with failing scenarios, as opposed to a
// command that could not run at all.
var errRunFailed = errors.New("run failed")

var (
	flagVerbose bool
	flagDebug   bool
)

func main() {
	os.Exit(execute())
}

func execute() int {
	root := &cobra.Command{
		Use:           "mcp-qa",
		Short:         "Schema-driven test generation and scenario execution for MCP tool servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log progress at info level")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log at debug level")

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newRunCmd())

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errRunFailed) {
		return exitFailed
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitUsage
}

func setupLogging() {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelInfo
	}
	if flagDebug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--header wants key=value, got %q", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
