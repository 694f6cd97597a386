// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion talks to an OpenAI-style streaming chat-completions
// endpoint and decodes its event stream.
//
// # Key Types
//
//   - Client: posts requests and hands back the open response body
//   - Request: the wire body (model, messages, temperature, max_tokens, stream)
//   - Event: one decoded stream event (delta, done, malformed, warning)
//   - TransportError: connection, timeout, status and read failures
//
// # Stream Format
//
// The response is line oriented. Each line may carry an SSE "data: " prefix.
// Payloads are JSON records whose choices[0].delta.content holds new text; the
// literal payload [DONE] ends the stream. Lines that are not JSON become
// malformed events and decoding continues.
//
// # Usage
//
//	body, err := client.Stream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//	for ev, err := range completion.Decode(body) {
//	    if err != nil {
//	        return completion.WrapReadError(ctx, err)
//	    }
//	    if ev.Kind == completion.EventDelta {
//	        buf.WriteString(ev.Text)
//	    }
//	}
package completion
