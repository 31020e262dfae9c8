package cdpcontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Session is a minimal flat CDP session bound to one inspected page target.
// It speaks the browser-level WebSocket endpoint directly instead of going
// through chromedp's session initialisation: the tracker needs exact control
// over which domains are enabled and when, and auto-attach destabilises some
// shell builds when service workers are swept in.
type Session struct {
	httpBase string // e.g. "http://127.0.0.1:9222"
	targetID string

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	sessionMu sync.Mutex
	sessionID string

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex

	eventMu       sync.RWMutex
	eventHandlers map[string][]eventHandler
}

type eventHandler struct {
	id int64
	fn func(params json.RawMessage)
}

func NewSession(httpBase, targetID string) *Session {
	return &Session{
		httpBase:      strings.TrimRight(httpBase, "/"),
		targetID:      targetID,
		pending:       make(map[int64]chan json.RawMessage),
		eventHandlers: make(map[string][]eventHandler),
	}
}

// Connect dials the browser-level WebSocket endpoint and starts the read loop.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	wsURL, err := s.browserWSURL(ctx)
	if err != nil {
		return NewError(CodeCDPUnavailable, "browser ws url", err)
	}

	slog.Debug("cdp session connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return NewError(CodeCDPUnavailable, "dial browser endpoint", err)
	}

	s.conn = conn
	s.pending = make(map[int64]chan json.RawMessage)
	go s.readLoop()
	return nil
}

// Close tears down the WebSocket. Pending callers are released with an error.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.sessionMu.Lock()
	s.sessionID = ""
	s.sessionMu.Unlock()
}

// Attach attaches a flat session to the inspected target. A no-op when a
// session is already attached.
func (s *Session) Attach(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.sessionID != "" {
		return nil
	}

	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: s.targetID, Flatten: true}

	raw, err := s.send(ctx, "Target.attachToTarget", params)
	if err != nil {
		return NewError(CodeCDPUnavailable, "attach to target", err)
	}

	var resp struct {
		Result struct {
			SessionID string `json:"sessionId"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return NewError(CodeCDPUnavailable, "unmarshal attach", err)
	}
	if resp.Error != nil {
		return NewError(CodeCDPUnavailable, "attach to target: "+resp.Error.Message, nil)
	}
	s.sessionID = resp.Result.SessionID
	slog.Debug("cdp session attached", "target_id", s.targetID, "session_id", s.sessionID)
	return nil
}

// Detach detaches the flat session without closing the target.
func (s *Session) Detach(ctx context.Context) error {
	s.sessionMu.Lock()
	sid := s.sessionID
	s.sessionID = ""
	s.sessionMu.Unlock()
	if sid == "" {
		return nil
	}

	params := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sid}
	_, err := s.send(ctx, "Target.detachFromTarget", params)
	return err
}

// DropSession forgets the attached session id without a protocol call, so a
// fresh attach happens on the next Attach. Used after an external detach.
func (s *Session) DropSession() {
	s.sessionMu.Lock()
	s.sessionID = ""
	s.sessionMu.Unlock()
}

// readLoop processes incoming messages and dispatches responses to waiters
// and events to registered handlers.
func (s *Session) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("cdp session read loop exit", "error", err)
			s.closeAllPending()
			return
		}

		var msg struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.ID > 0 {
			s.pendingMu.Lock()
			ch, ok := s.pending[msg.ID]
			if ok {
				delete(s.pending, msg.ID)
			}
			s.pendingMu.Unlock()
			if ok {
				ch <- json.RawMessage(data)
			}
		} else if msg.Method != "" {
			s.dispatchEvent(msg.Method, msg.Params)
		}
	}
}

func (s *Session) closeAllPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) deletePending(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// send marshals a browser-scope command, sends it, and waits for the response.
func (s *Session) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.seq.Add(1)
	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}
	return s.sendRaw(ctx, id, req)
}

// call sends a command on the attached flat session and returns the inner
// result payload.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.sessionMu.Lock()
	sid := s.sessionID
	s.sessionMu.Unlock()
	if sid == "" {
		return nil, NewError(CodeCDPUnavailable, "session not attached", nil)
	}

	id := s.seq.Add(1)
	req := struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{ID: id, Method: method, SessionID: sid, Params: params}

	resp, err := s.sendRaw(ctx, id, req)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return resp, nil
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%s: %s", method, envelope.Error.Message)
	}
	return envelope.Result, nil
}

func (s *Session) sendRaw(ctx context.Context, id int64, envelope any) (json.RawMessage, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, NewError(CodeCDPUnavailable, "not connected", nil)
	}

	ch := make(chan json.RawMessage, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	data, err := json.Marshal(envelope)
	if err != nil {
		s.deletePending(id)
		return nil, fmt.Errorf("cdp session: marshal: %w", err)
	}

	s.mu.Lock()
	err = wsutil.WriteClientText(conn, data)
	s.mu.Unlock()
	if err != nil {
		s.deletePending(id)
		return nil, NewError(CodeCDPUnavailable, "send", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, NewError(CodeCDPUnavailable, "connection closed", nil)
		}
		return resp, nil
	case <-ctx.Done():
		s.deletePending(id)
		return nil, ctx.Err()
	}
}

// OnEvent registers a handler for a CDP event method (e.g.
// "Runtime.executionContextCreated"). Returns an unregister function.
func (s *Session) OnEvent(method string, fn func(params json.RawMessage)) func() {
	id := s.seq.Add(1)
	s.eventMu.Lock()
	s.eventHandlers[method] = append(s.eventHandlers[method], eventHandler{id: id, fn: fn})
	s.eventMu.Unlock()
	return func() {
		s.eventMu.Lock()
		defer s.eventMu.Unlock()
		handlers := s.eventHandlers[method]
		for i, h := range handlers {
			if h.id == id {
				s.eventHandlers[method] = append(handlers[:i], handlers[i+1:]...)
				break
			}
		}
	}
}

func (s *Session) dispatchEvent(method string, params json.RawMessage) {
	s.eventMu.RLock()
	handlers := make([]eventHandler, len(s.eventHandlers[method]))
	copy(handlers, s.eventHandlers[method])
	s.eventMu.RUnlock()
	for _, h := range handlers {
		h.fn(params)
	}
}

// browserWSURL fetches the WebSocket debugger URL from /json/version.
func (s *Session) browserWSURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
