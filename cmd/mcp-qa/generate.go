package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mcp-qa/internal/client"
	"mcp-qa/internal/generator"
)

func newGenerateCmd() *cobra.Command {
	var (
		server    string
		transport string
		headers   []string
		output    string
		tools     string
		edgeCases string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Derive test cases from the server's declared tool schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			depth := generator.Depth(edgeCases)
			if depth != generator.DepthMinimal && depth != generator.DepthDeep {
				return fmt.Errorf("--edge-cases must be minimal or deep, got %q", edgeCases)
			}

			hdrs, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := client.Connect(ctx, server, client.Options{Transport: transport, Headers: hdrs})
			if err != nil {
				return fmt.Errorf("connect %s: %w", server, err)
			}
			defer c.Close()

			advertised, err := c.ListTools(ctx)
			if err != nil {
				return fmt.Errorf("list tools: %w", err)
			}
			selected := selectTools(advertised, splitCSV(tools))
			if len(selected) == 0 {
				return fmt.Errorf("no matching tools (server advertises %d)", len(advertised))
			}

			for _, tool := range selected {
				res, err := generator.Generate(tool.Name, tool.Schema, generator.Options{Depth: depth})
				if err != nil {
					return fmt.Errorf("generate %s: %w", tool.Name, err)
				}
				for _, issue := range res.Issues {
					slog.Warn("schema defect, constraint skipped", "tool", tool.Name, "detail", issue.Error())
				}
				for _, w := range res.Warnings {
					slog.Warn("generation warning", "tool", tool.Name, "detail", w)
				}

				if dryRun {
					fmt.Print(res.Inventory())
					continue
				}
				written, err := res.WriteFiles(output, server)
				if err != nil {
					return err
				}
				for _, path := range written {
					fmt.Fprintf(os.Stdout, "wrote %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "MCP server URL (required)")
	cmd.Flags().StringVar(&transport, "transport", "", "transport: streamable-http (default) or sse")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "extra HTTP header as key=value (repeatable)")
	cmd.Flags().StringVar(&output, "output", "scenarios", "directory for generated scenario files")
	cmd.Flags().StringVar(&tools, "tools", "", "comma-separated tool names (default: all advertised)")
	cmd.Flags().StringVar(&edgeCases, "edge-cases", string(generator.DepthMinimal), "boundary depth: minimal or deep")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the case inventory without writing files")
	cmd.MarkFlagRequired("server")
	return cmd
}

func selectTools(advertised []client.Tool, names []string) []client.Tool {
	if len(names) == 0 {
		return advertised
	}
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []client.Tool
	for _, t := range advertised {
		if want[t.Name] {
			out = append(out, t)
		}
	}
	return out
}
