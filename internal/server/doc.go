// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server serves the browser chat surface.
//
// # Endpoints
//
//   - GET /         - Chat page (embedded, KaTeX auto-render for math)
//   - GET /static/  - Page assets
//   - GET /ws       - Websocket carrying one chat session
//   - GET /health   - Liveness plus completion endpoint reachability
//
// # Websocket Protocol
//
// Each connection owns one session.Controller and its conversation. Nothing
// is shared between connections and nothing outlives the connection.
//
// The page sends JSON frames:
//
//	{"type":"submit","text":"What is 2+2?"}
//	{"type":"cancel"}
//	{"type":"reset"}
//
// The server answers with history, message, live, live_clear, warning,
// error and state frames. Message and live frames carry rendered HTML.
//
// # Usage
//
//	srv := server.New(cfg, server.WithLogger(logger))
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
