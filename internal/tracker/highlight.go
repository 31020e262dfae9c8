package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

const (
	markHover    = "hover"
	markSelected = "selected"
)

type highlightKey struct {
	frameID cdp.FrameID
	nodeID  cdp.BackendNodeID
}

// HighlightDiffer keeps the set of elements currently marked "selected" in
// the page and converges it to a requested target set with the minimal
// mark/unmark operations. The set is only ever mutated through Apply, except
// for the full reset on connection loss.
type HighlightDiffer struct {
	conn    *Connection
	reg     *FrameContextRegistry
	handles *ObjectHandleCache
	sess    Session

	mu      sync.Mutex
	current map[highlightKey]struct{}
}

func NewHighlightDiffer(conn *Connection, reg *FrameContextRegistry, handles *ObjectHandleCache, sess Session) *HighlightDiffer {
	return &HighlightDiffer{
		conn:    conn,
		reg:     reg,
		handles: handles,
		sess:    sess,
		current: make(map[highlightKey]struct{}),
	}
}

// Apply converges the page's selected marks to the given element set, scoped
// to scopeID. A call where both the target and the previous set are empty is
// a complete no-op, so an idle UI never touches the connection. Per-pair
// failures are logged and skipped; the rest of the diff still applies.
func (h *HighlightDiffer) Apply(ctx context.Context, elements []SelectedElement, scopeID string) {
	target := make(map[highlightKey]struct{})
	for _, el := range elements {
		if el.ScopeID != scopeID {
			continue
		}
		if el.BackendNodeID == 0 || el.FrameID == "" {
			continue
		}
		target[highlightKey{frameID: el.FrameID, nodeID: el.BackendNodeID}] = struct{}{}
	}

	h.mu.Lock()
	previous := h.current
	h.mu.Unlock()

	if len(target) == 0 && len(previous) == 0 {
		return
	}

	var adds, removes []highlightKey
	for key := range previous {
		if _, ok := target[key]; !ok {
			removes = append(removes, key)
		}
	}
	for key := range target {
		if _, ok := previous[key]; !ok {
			adds = append(adds, key)
		}
	}
	if len(adds) == 0 && len(removes) == 0 {
		return
	}

	// The recorded set only advances once the connection answers: a skipped
	// diff leaves `current` untouched so the next identical request still
	// sees work to do.
	if err := h.conn.EnsureReady(ctx); err != nil {
		slog.Debug("tracker highlight diff skipped", "error", err)
		return
	}
	h.mu.Lock()
	h.current = target
	h.mu.Unlock()

	for _, key := range removes {
		if err := h.toggle(ctx, key.frameID, key.nodeID, markSelected, false); err != nil {
			slog.Debug("tracker unmark failed", "frame_id", key.frameID, "node_id", key.nodeID, "error", err)
		}
	}
	for _, key := range adds {
		if err := h.toggle(ctx, key.frameID, key.nodeID, markSelected, true); err != nil {
			slog.Debug("tracker mark failed", "frame_id", key.frameID, "node_id", key.nodeID, "error", err)
		}
	}
}

// toggle flips one overlay mark by invoking the sandbox bridge on the node.
// Always resolved in the frame's isolated context: the overlay hook lives in
// the injected bridge, not in page code.
func (h *HighlightDiffer) toggle(ctx context.Context, frameID cdp.FrameID, nodeID cdp.BackendNodeID, kind string, active bool) error {
	contextID := h.reg.IsolatedContext(frameID)
	if contextID == 0 {
		return cdpcontrol.NewError(cdpcontrol.CodeStaleContext, "no isolated context for frame", nil)
	}
	objectID, err := h.handles.Resolve(ctx, h.sess, h.reg, nodeID, contextID)
	if err != nil {
		return err
	}
	args := []cdpcontrol.CallArgument{{Value: kind}, {Value: active}}
	raw, err := h.sess.CallFunctionOn(ctx, objectID, scriptToggleHighlight, args)
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err == nil && !ok {
		slog.Debug("tracker highlight bridge unavailable", "frame_id", frameID, "kind", kind)
	}
	return nil
}

// Count returns the number of currently marked elements.
func (h *HighlightDiffer) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.current)
}

// Reset forgets the marked set without touching the page. Only used on full
// connection reset, when the marks died with their contexts.
func (h *HighlightDiffer) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = make(map[highlightKey]struct{})
}
