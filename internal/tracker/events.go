package tracker

import (
	"encoding/json"
	"log/slog"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

// Event wiring. Every handler runs synchronously on the session's dispatch
// goroutine; cascades that invalidate cached identities happen inside the
// same handler, never deferred, so no operation observes a half-purged view.
//
// Frame ids in event payloads are decoded through plain strings: cdproto's
// FrameID unmarshaler turns a JSON "" into a literal quote pair, which would
// defeat every empty-id check below.

func (t *Tracker) subscribeEvents() {
	sub := func(method string, fn func(params json.RawMessage)) {
		t.unsubscribe = append(t.unsubscribe, t.sess.OnEvent(method, fn))
	}

	sub("Runtime.executionContextCreated", t.onContextCreated)
	sub("Runtime.executionContextDestroyed", t.onContextDestroyed)
	sub("Runtime.executionContextsCleared", t.onContextsCleared)
	sub("Page.frameNavigated", t.onFrameNavigated)
	sub("Page.frameAttached", t.onFrameAttached)
	sub("Page.frameDetached", t.onFrameDetached)
	sub("Page.frameStartedLoading", t.onFrameStartedLoading)
	sub("Page.frameTitleUpdated", t.onFrameTitleUpdated)
	sub("Inspector.detached", t.onInspectorDetached)
}

func (t *Tracker) onContextCreated(params json.RawMessage) {
	var ev struct {
		Context struct {
			ID      runtime.ExecutionContextID `json:"id"`
			Name    string                     `json:"name"`
			AuxData struct {
				FrameID   string `json:"frameId"`
				IsDefault bool   `json:"isDefault"`
				Type      string `json:"type"`
			} `json:"auxData"`
		} `json:"context"`
	}
	if err := json.Unmarshal(params, &ev); err != nil {
		slog.Debug("tracker bad context-created event", "error", err)
		return
	}
	t.reg.HandleContextCreated(contextDescription{
		ID:        ev.Context.ID,
		Name:      ev.Context.Name,
		FrameID:   cdp.FrameID(ev.Context.AuxData.FrameID),
		IsDefault: ev.Context.AuxData.IsDefault,
		AuxType:   ev.Context.AuxData.Type,
	})
}

func (t *Tracker) onContextDestroyed(params json.RawMessage) {
	var ev struct {
		ExecutionContextID runtime.ExecutionContextID `json:"executionContextId"`
	}
	if err := json.Unmarshal(params, &ev); err != nil {
		return
	}
	t.handles.DeleteContext(ev.ExecutionContextID)
	frameID, contextsGone := t.reg.HandleContextDestroyed(ev.ExecutionContextID)
	if contextsGone && frameID != "" {
		t.hit.ClearHoverIfFrame(frameID)
		t.infoCache.deleteFrame(frameID)
	}
}

// onContextsCleared fires when the whole runtime resets (usually a main-frame
// navigation commit): every context id is dead at once.
func (t *Tracker) onContextsCleared(json.RawMessage) {
	t.handles.Reset()
	t.infoCache.reset()
	t.hit.ClearHover(false)
}

func (t *Tracker) onFrameNavigated(params json.RawMessage) {
	var ev struct {
		Frame cdpcontrol.Frame `json:"frame"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.Frame.ID == "" {
		return
	}
	t.reg.HandleFrameNavigated(ev.Frame)
	// Whatever was parsed for nodes in the old document is gone.
	t.infoCache.deleteFrame(ev.Frame.ID)
}

func (t *Tracker) onFrameAttached(params json.RawMessage) {
	var ev struct {
		FrameID       string `json:"frameId"`
		ParentFrameID string `json:"parentFrameId"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.FrameID == "" {
		return
	}
	t.reg.HandleFrameAttached(cdp.FrameID(ev.FrameID), cdp.FrameID(ev.ParentFrameID))
}

func (t *Tracker) onFrameDetached(params json.RawMessage) {
	var ev struct {
		FrameID string `json:"frameId"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.FrameID == "" {
		return
	}
	frameID := cdp.FrameID(ev.FrameID)
	for _, contextID := range t.reg.HandleFrameDetached(frameID) {
		t.handles.DeleteContext(contextID)
	}
	t.hit.ClearHoverIfFrame(frameID)
	t.infoCache.deleteFrame(frameID)
}

// onFrameStartedLoading downgrades the connection when the main frame starts
// navigating: its execution contexts are about to die en masse. Subframe
// loads are handled by the finer-grained context events.
func (t *Tracker) onFrameStartedLoading(params json.RawMessage) {
	var ev struct {
		FrameID string `json:"frameId"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.FrameID == "" {
		return
	}
	if cdp.FrameID(ev.FrameID) != t.reg.MainFrameID() {
		return
	}
	t.conn.HandleNavigationStarted()
	t.hit.ClearHover(false)
}

func (t *Tracker) onFrameTitleUpdated(params json.RawMessage) {
	var ev struct {
		FrameID string `json:"frameId"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(params, &ev); err != nil || ev.FrameID == "" {
		return
	}
	t.reg.HandleTitleUpdated(cdp.FrameID(ev.FrameID), ev.Title)
}

func (t *Tracker) onInspectorDetached(params json.RawMessage) {
	var ev struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(params, &ev)
	t.sess.DropSession()
	t.conn.HandleDetached(ev.Reason)
}
