// Command mcpmock serves a mock MCP tool server from a YAML declaration,
// over stdio or streamable HTTP.
package main

import (
	"flag"
	"log"

	"mcp-qa/internal/mocktool"
)

func main() {
	var (
		configPath = flag.String("config", "tools.yaml", "YAML tool declaration file")
		addr       = flag.String("addr", ":8081", "HTTP listen address")
		stdio      = flag.Bool("stdio", false, "serve the MCP protocol on stdin/stdout instead of HTTP")
	)
	flag.Parse()

	cfg, err := mocktool.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("mcpmock: %v", err)
	}
	srv, err := mocktool.New(cfg)
	if err != nil {
		log.Fatalf("mcpmock: %v", err)
	}

	if *stdio {
		// no logging on stdout: it would corrupt the protocol stream
		if err := srv.ServeStdio(); err != nil {
			log.Fatalf("mcpmock: %v", err)
		}
		return
	}

	log.Printf("mcpmock listening on %s (%d tools)", *addr, len(cfg.Tools))
	log.Fatal(srv.ListenAndServe(*addr))
}
