package tracker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chromedp/cdproto/cdp"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

// ElementInfoExtractor serializes a node's descriptive data on demand. The
// extraction is a two-step bridge: the isolated sandbox provides the
// descriptor (the minimum viable result), the main world best-effort enriches
// it with framework internals and own-property names. Results are served
// through a small read-through cache keyed by (node, frame).
type ElementInfoExtractor struct {
	conn      *Connection
	reg       *FrameContextRegistry
	handles   *ObjectHandleCache
	infoCache *elementInfoCache
	walker    *ComponentTreeWalker
	sess      Session
}

func NewElementInfoExtractor(conn *Connection, reg *FrameContextRegistry, handles *ObjectHandleCache, infoCache *elementInfoCache, walker *ComponentTreeWalker, sess Session) *ElementInfoExtractor {
	return &ElementInfoExtractor{
		conn:      conn,
		reg:       reg,
		handles:   handles,
		infoCache: infoCache,
		walker:    walker,
		sess:      sess,
	}
}

// Extract builds the full SelectedElement for a hovered node. It returns
// (nil, nil) whenever the environment cannot produce a descriptor — missing
// context, departed node, sandbox bridge absent. Those are races, not errors.
func (e *ElementInfoExtractor) Extract(ctx context.Context, hover *HoverState) (*SelectedElement, error) {
	if hover == nil {
		return nil, nil
	}
	if cached, ok := e.infoCache.get(hover.BackendNodeID, hover.FrameID); ok {
		return cached, nil
	}
	if err := e.conn.EnsureReady(ctx); err != nil {
		slog.Debug("tracker extraction skipped", "error", err)
		return nil, nil
	}

	desc := e.describeInSandbox(ctx, hover)
	if desc == nil {
		return nil, nil
	}

	el := &SelectedElement{
		ID:            hover.NodeID,
		BackendNodeID: hover.BackendNodeID,
		FrameID:       hover.FrameID,
		Tag:           desc.Tag,
		Attributes:    desc.Attributes,
		Rect:          desc.Rect,
		Properties:    desc.Properties,
	}

	e.enrichFromMainWorld(ctx, hover, el)
	e.enrichFrameIdentity(ctx, hover.FrameID, el)

	e.infoCache.put(el)
	return el, nil
}

// Invalidate drops the cached info for one element. Called when the hover
// moves off it.
func (e *ElementInfoExtractor) Invalidate(nodeID cdp.BackendNodeID, frameID cdp.FrameID) {
	e.infoCache.delete(nodeID, frameID)
}

// describeInSandbox runs step one: the isolated sandbox's extraction bridge.
// No usable context or no result means no element.
func (e *ElementInfoExtractor) describeInSandbox(ctx context.Context, hover *HoverState) *ElementDescriptor {
	contextID := e.reg.IsolatedContext(hover.FrameID)
	if contextID == 0 {
		slog.Debug("tracker extraction has no isolated context", "frame_id", hover.FrameID)
		return nil
	}
	objectID, err := e.handles.Resolve(ctx, e.sess, e.reg, hover.BackendNodeID, contextID)
	if err != nil {
		slog.Debug("tracker extraction resolve failed", "error", err)
		return nil
	}
	args := []cdpcontrol.CallArgument{{Value: hover.NodeID}}
	raw, err := e.sess.CallFunctionOn(ctx, objectID, scriptDescribeElement, args)
	if err != nil {
		slog.Debug("tracker sandbox describe failed", "error", err)
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var desc ElementDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		slog.Debug("tracker descriptor decode failed", "error", err)
		return nil
	}
	return &desc
}

// enrichFromMainWorld runs step two. Every failure degrades to the step-one
// descriptor unchanged.
func (e *ElementInfoExtractor) enrichFromMainWorld(ctx context.Context, hover *HoverState, el *SelectedElement) {
	contextID := e.reg.MainWorldContext(hover.FrameID)
	if contextID == 0 {
		return
	}
	objectID, err := e.handles.Resolve(ctx, e.sess, e.reg, hover.BackendNodeID, contextID)
	if err != nil {
		slog.Debug("tracker main-world resolve failed", "error", err)
		return
	}

	chain, err := e.walker.Walk(ctx, objectID)
	if err != nil {
		slog.Debug("tracker component walk failed", "error", err)
	} else if chain != nil {
		// Main-world framework data wins over anything the sandbox guessed.
		el.FrameworkInfo = chain
	}

	raw, err := e.sess.CallFunctionOn(ctx, objectID, scriptOwnPropertyNames, nil)
	if err != nil {
		slog.Debug("tracker own-property enumeration failed", "error", err)
		return
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil && len(names) > 0 {
		el.OwnPropertyNames = names
	}
}

// enrichFrameIdentity fills in the registry's view of the element's frame,
// fetching the live document title when the cached one is empty.
func (e *ElementInfoExtractor) enrichFrameIdentity(ctx context.Context, frameID cdp.FrameID, el *SelectedElement) {
	info, ok := e.reg.Frame(frameID)
	if !ok {
		return
	}
	el.IsMainFrame = info.IsMainFrame
	el.FrameLocation = info.URL
	el.FrameTitle = info.Title

	if el.FrameTitle == "" {
		if contextID := e.reg.BestContext(frameID); contextID != 0 {
			raw, err := e.sess.Evaluate(ctx, contextID, exprDocumentTitle)
			if err == nil {
				var title string
				if json.Unmarshal(raw, &title) == nil && title != "" {
					el.FrameTitle = title
					e.reg.HandleTitleUpdated(frameID, title)
				}
			}
		}
	}
}
