// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/mimochat/internal/logging"
	"github.com/jeranaias/mimochat/internal/model"
	"github.com/jeranaias/mimochat/internal/render"
	"github.com/jeranaias/mimochat/internal/session"
)

const (
	// MaxClientFrame caps a frame sent by the browser.
	MaxClientFrame = 256 << 10

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client frame types.
const (
	FrameSubmit = "submit"
	FrameCancel = "cancel"
	FrameReset  = "reset"
)

// Server frame types.
const (
	FrameHistory   = "history"
	FrameMessage   = "message"
	FrameLive      = "live"
	FrameLiveClear = "live_clear"
	FrameWarning   = "warning"
	FrameError     = "error"
	FrameState     = "state"
)

// ClientFrame is a frame sent by the page.
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerFrame is a frame sent to the page.
type ServerFrame struct {
	Type     string         `json:"type"`
	ID       string         `json:"id,omitempty"`
	Role     string         `json:"role,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Text     string         `json:"text,omitempty"`
	State    string         `json:"state,omitempty"`
	Busy     bool           `json:"busy,omitempty"`
	Messages []*ServerFrame `json:"messages,omitempty"`
}

// ============================================================================
// CONNECTION
// ============================================================================

// wsConn serializes writes to one websocket. gorilla allows a single
// concurrent writer; control frames are exempt.
type wsConn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	broken bool
}

func (c *wsConn) send(f *ServerFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(f); err != nil {
		c.broken = true
		c.logger.Debug("websocket write failed", "type", f.Type, "error", err)
		_ = c.ws.Close()
	}
}

// ============================================================================
// SURFACE
// ============================================================================

// wsSurface presents a session in the browser. Committed messages go
// through the full pipeline; the live region arrives already transformed.
type wsSurface struct {
	conn *wsConn
	ts   render.Typesetter
}

func (s *wsSurface) messageFrame(msg model.Message) *ServerFrame {
	f := &ServerFrame{Type: FrameMessage, ID: msg.ID, Role: string(msg.Role)}
	if msg.Role == model.RoleUser {
		f.HTML = userHTML(msg.Content)
	} else {
		f.HTML = render.Compose(msg.Content, s.ts)
	}
	return f
}

func (s *wsSurface) historyFrame(msgs []model.Message) *ServerFrame {
	f := &ServerFrame{Type: FrameHistory, Messages: []*ServerFrame{}}
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			continue
		}
		f.Messages = append(f.Messages, s.messageFrame(m))
	}
	return f
}

func (s *wsSurface) AppendMessage(msg model.Message) {
	if msg.Role == model.RoleSystem {
		return
	}
	s.conn.send(s.messageFrame(msg))
}

func (s *wsSurface) ResetHistory(msgs []model.Message) {
	s.conn.send(s.historyFrame(msgs))
}

func (s *wsSurface) UpdateLive(display string) {
	s.conn.send(&ServerFrame{Type: FrameLive, HTML: render.Typeset(display, s.ts)})
}

func (s *wsSurface) ClearLive() {
	s.conn.send(&ServerFrame{Type: FrameLiveClear})
}

func (s *wsSurface) Warn(text string) {
	s.conn.send(&ServerFrame{Type: FrameWarning, Text: text})
}

func (s *wsSurface) Error(text string) {
	s.conn.send(&ServerFrame{Type: FrameError, Text: text})
}

func stateFrame(st session.State) *ServerFrame {
	return &ServerFrame{Type: FrameState, State: st.String(), Busy: st.Busy()}
}

// userHTML shows user input as typed, line breaks kept.
func userHTML(text string) string {
	return `<p class="user-text">` + strings.ReplaceAll(render.Escape(text), "\n", "<br>") + `</p>`
}

// ============================================================================
// HANDLER
// ============================================================================

// handleWebSocket runs one session for the life of the connection. Closing
// the connection cancels any turn in flight.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	logger := logging.FromContext(r.Context(), s.logger)

	policy := OriginPolicy{AllowedOrigins: cfg.Server.AllowedOrigins}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
		CheckOrigin:     policy.Allowed,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.conns.Add(1)
	s.active.Add(1)
	defer func() {
		s.active.Add(-1)
		s.conns.Done()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	conn := &wsConn{ws: ws, logger: logger}
	surface := &wsSurface{conn: conn, ts: render.NewHTMLTypesetter(cfg.Server.CodeStyle)}
	ctrl := session.New(cfg.SessionOptions(), s.backendFor(cfg), surface,
		session.WithLogger(logger),
		session.WithStateHook(func(st session.State) { conn.send(stateFrame(st)) }),
	)
	logger.Info("session open", "model", cfg.Endpoint.Model)

	conn.send(surface.historyFrame(ctrl.History()))
	conn.send(stateFrame(ctrl.State()))

	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
		logger.Info("session closed")
	}()

	ws.SetReadLimit(MaxClientFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go pinger(ctx, ws)

	for {
		var frame ClientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		switch frame.Type {
		case FrameSubmit:
			turns.Add(1)
			go func(text string) {
				defer turns.Done()
				runTurn(ctx, ctrl, conn, text)
			}(frame.Text)
		case FrameCancel:
			ctrl.Cancel()
		case FrameReset:
			if err := ctrl.Reset(); err != nil {
				surface.Error(err.Error())
			}
		default:
			surface.Error("unknown frame type: " + frame.Type)
		}
	}
}

// runTurn submits text. The controller surfaces its own failures; only a
// rejected submission needs reporting here.
func runTurn(ctx context.Context, ctrl *session.Controller, conn *wsConn, text string) {
	if err := ctrl.Submit(ctx, text); errors.Is(err, session.ErrBusy) {
		conn.send(&ServerFrame{Type: FrameError, Text: err.Error()})
	}
}

func pinger(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
