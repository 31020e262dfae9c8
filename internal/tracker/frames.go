package tracker

import (
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

type frameEntry struct {
	url      string
	title    string
	isMain   bool
	parentID cdp.FrameID

	isolatedContextID  runtime.ExecutionContextID
	mainWorldContextID runtime.ExecutionContextID
}

// FrameContextRegistry tracks, per frame, the frame's URL/title/parent
// relationship and the two execution contexts relevant to inspection: the
// injected isolated sandbox and the page's main world. It is rebuilt
// incrementally from context- and frame-lifecycle events; at most one entry
// exists per frame id.
type FrameContextRegistry struct {
	isolatedWorldName string

	mu          sync.Mutex
	frames      map[cdp.FrameID]*frameEntry
	mainFrameID cdp.FrameID
}

func NewFrameContextRegistry(isolatedWorldName string) *FrameContextRegistry {
	return &FrameContextRegistry{
		isolatedWorldName: isolatedWorldName,
		frames:            make(map[cdp.FrameID]*frameEntry),
	}
}

// InitializeFromFrameTree records URL, parent and main-frame flag for every
// frame in a tree snapshot. Known titles are preserved: titles arrive from a
// separate event and may race the snapshot.
func (r *FrameContextRegistry) InitializeFromFrameTree(tree *cdpcontrol.FrameTree) {
	if tree == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walkTreeLocked(tree, "")
}

func (r *FrameContextRegistry) walkTreeLocked(node *cdpcontrol.FrameTree, parentID cdp.FrameID) {
	id := node.Frame.ID
	entry := r.frames[id]
	if entry == nil {
		entry = &frameEntry{}
		r.frames[id] = entry
	}
	entry.url = node.Frame.URL
	entry.parentID = parentID
	if node.Frame.ParentID != "" {
		entry.parentID = node.Frame.ParentID
	}
	entry.isMain = entry.parentID == ""
	if entry.isMain {
		r.mainFrameID = id
	}
	for _, child := range node.ChildFrames {
		r.walkTreeLocked(child, id)
	}
}

// classify decides which half of a frame's context pair a new execution
// context fills. The rule is a heuristic (extensions may inject contexts that
// fit neither bucket): the isolated sandbox is recognised by the injected
// world name or an "isolated" aux type; the main world by the default
// aux-data marker or an empty name.
func (r *FrameContextRegistry) classify(desc contextDescription) contextKind {
	if desc.Name == r.isolatedWorldName || desc.AuxType == "isolated" {
		return contextIsolated
	}
	if desc.IsDefault || desc.AuxType == "default" || desc.Name == "" {
		return contextMainWorld
	}
	return contextUnknown
}

// HandleContextCreated attaches a new execution context to its frame's pair.
func (r *FrameContextRegistry) HandleContextCreated(desc contextDescription) {
	kind := r.classify(desc)
	if kind == contextUnknown || desc.FrameID == "" {
		slog.Debug("tracker ignoring unclassified context", "context_id", desc.ID, "name", desc.Name, "aux_type", desc.AuxType)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[desc.FrameID]
	if entry == nil {
		entry = &frameEntry{}
		r.frames[desc.FrameID] = entry
	}
	switch kind {
	case contextIsolated:
		entry.isolatedContextID = desc.ID
	case contextMainWorld:
		entry.mainWorldContextID = desc.ID
	}
}

// HandleContextDestroyed zeroes the destroyed half of the owning frame's
// context pair. It returns the owning frame id and whether both halves are
// now gone, so the caller can cascade (hover clear, handle-cache purge)
// synchronously within the same event handler.
func (r *FrameContextRegistry) HandleContextDestroyed(id runtime.ExecutionContextID) (frameID cdp.FrameID, contextsGone bool) {
	if id == 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for fid, entry := range r.frames {
		matched := false
		if entry.isolatedContextID == id {
			entry.isolatedContextID = 0
			matched = true
		}
		if entry.mainWorldContextID == id {
			entry.mainWorldContextID = 0
			matched = true
		}
		if matched {
			return fid, entry.isolatedContextID == 0 && entry.mainWorldContextID == 0
		}
	}
	return "", false
}

// DropContext removes a context id from whichever pair holds it, without
// frame bookkeeping. Used when a resolution call discovers the context is
// already gone before the destroy event arrived.
func (r *FrameContextRegistry) DropContext(id runtime.ExecutionContextID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.frames {
		if entry.isolatedContextID == id {
			entry.isolatedContextID = 0
		}
		if entry.mainWorldContextID == id {
			entry.mainWorldContextID = 0
		}
	}
}

// HandleFrameNavigated updates or creates the frame's entry in place,
// preserving any known title.
func (r *FrameContextRegistry) HandleFrameNavigated(frame cdpcontrol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[frame.ID]
	if entry == nil {
		entry = &frameEntry{}
		r.frames[frame.ID] = entry
	}
	entry.url = frame.URL
	entry.parentID = frame.ParentID
	entry.isMain = frame.ParentID == ""
	if entry.isMain {
		r.mainFrameID = frame.ID
	}
}

// HandleFrameAttached records a newly attached frame.
func (r *FrameContextRegistry) HandleFrameAttached(frameID, parentID cdp.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[frameID]
	if entry == nil {
		entry = &frameEntry{}
		r.frames[frameID] = entry
	}
	entry.parentID = parentID
	entry.isMain = parentID == ""
}

// HandleFrameDetached removes the frame and returns the context ids that
// belonged to it so dependent caches can purge them.
func (r *FrameContextRegistry) HandleFrameDetached(frameID cdp.FrameID) []runtime.ExecutionContextID {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[frameID]
	if entry == nil {
		return nil
	}
	var removed []runtime.ExecutionContextID
	if entry.isolatedContextID != 0 {
		removed = append(removed, entry.isolatedContextID)
	}
	if entry.mainWorldContextID != 0 {
		removed = append(removed, entry.mainWorldContextID)
	}
	delete(r.frames, frameID)
	if r.mainFrameID == frameID {
		r.mainFrameID = ""
	}
	return removed
}

// HandleTitleUpdated updates a frame's title in place, creating a minimal
// entry when the title event precedes the navigation event.
func (r *FrameContextRegistry) HandleTitleUpdated(frameID cdp.FrameID, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[frameID]
	if entry == nil {
		entry = &frameEntry{}
		r.frames[frameID] = entry
	}
	entry.title = title
}

// Frame returns the registry's cached view of a frame.
func (r *FrameContextRegistry) Frame(frameID cdp.FrameID) (FrameInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[frameID]
	if entry == nil {
		return FrameInfo{}, false
	}
	return FrameInfo{
		FrameID:     frameID,
		URL:         entry.url,
		Title:       entry.title,
		IsMainFrame: entry.isMain,
		ParentID:    entry.parentID,
	}, true
}

// IsolatedContext returns the frame's isolated-sandbox context id, 0 if none.
func (r *FrameContextRegistry) IsolatedContext(frameID cdp.FrameID) runtime.ExecutionContextID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry := r.frames[frameID]; entry != nil {
		return entry.isolatedContextID
	}
	return 0
}

// MainWorldContext returns the frame's main-world context id, 0 if none.
func (r *FrameContextRegistry) MainWorldContext(frameID cdp.FrameID) runtime.ExecutionContextID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry := r.frames[frameID]; entry != nil {
		return entry.mainWorldContextID
	}
	return 0
}

// BestContext prefers the isolated sandbox and falls back to the main world.
func (r *FrameContextRegistry) BestContext(frameID cdp.FrameID) runtime.ExecutionContextID {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.frames[frameID]
	if entry == nil {
		return 0
	}
	if entry.isolatedContextID != 0 {
		return entry.isolatedContextID
	}
	return entry.mainWorldContextID
}

// MainFrameID returns the current top frame id, empty when unknown.
func (r *FrameContextRegistry) MainFrameID() cdp.FrameID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainFrameID
}

// AnyFrameID returns an arbitrary known frame id as a last-resort fallback
// for hit results that omit the frame.
func (r *FrameContextRegistry) AnyFrameID() cdp.FrameID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.frames {
		return id
	}
	return ""
}

// ParentOf returns a frame's parent frame id.
func (r *FrameContextRegistry) ParentOf(frameID cdp.FrameID) cdp.FrameID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry := r.frames[frameID]; entry != nil {
		return entry.parentID
	}
	return ""
}

// Counts reports frame and live-context totals for status reporting.
func (r *FrameContextRegistry) Counts() (frames, contexts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames = len(r.frames)
	for _, entry := range r.frames {
		if entry.isolatedContextID != 0 {
			contexts++
		}
		if entry.mainWorldContextID != 0 {
			contexts++
		}
	}
	return frames, contexts
}

// Reset drops all frame and context state.
func (r *FrameContextRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[cdp.FrameID]*frameEntry)
	r.mainFrameID = ""
}
