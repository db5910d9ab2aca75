// Copyright 2025 SQLWard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sqlward/platform/gateway"
	"sqlward/platform/gateway/sqlguard"
	"sqlward/platform/mcpserver"
)

func main() {
	allowWrites := flag.Bool("allow-writes", false, "enable the transact tool")
	flag.Parse()

	// The stdio transport owns stdout; everything else goes to stderr.
	log.SetOutput(os.Stderr)

	cfg, err := gateway.LoadConfig()
	if err != nil {
		log.Fatalf("mcp: %v", err)
	}
	if *allowWrites {
		cfg.AllowWrites = true
	}

	if err := sqlguard.InitGlobalEnforcer(cfg.Guard); err != nil {
		log.Fatalf("mcp: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := gateway.InitRegistry(ctx, cfg)
	if err != nil {
		log.Fatalf("mcp: %v", err)
	}
	defer reg.DisconnectAll(context.Background())

	srv, err := mcpserver.New(mcpserver.Options{
		Registry:    reg,
		Enforcer:    sqlguard.GetGlobalEnforcer(),
		AllowWrites: cfg.AllowWrites,
	})
	if err != nil {
		log.Fatalf("mcp: %v", err)
	}

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalf("mcp: %v", err)
	}
}
