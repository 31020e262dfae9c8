package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

const (
	defaultHandleCacheSize = 1000
	defaultInfoCacheSize   = 100
	maxFrameWalkDepth      = 32
)

// Options tunes one tracker instance. Zero values fall back to defaults.
type Options struct {
	// IsolatedWorldName identifies the injected sandbox's execution contexts.
	IsolatedWorldName string
	// ThrottleInterval is the minimum gap between two fired hit tests.
	ThrottleInterval time.Duration
	// EvalTimeout bounds each internally driven protocol operation.
	EvalTimeout time.Duration
	// HandleCacheSize bounds the remote object handle cache.
	HandleCacheSize int
	// InfoCacheSize bounds the parsed element info cache.
	InfoCacheSize int
}

// Tracker is the per-surface element tracker: one instance per inspected
// page, constructed on attach and dropped with the surface. All state lives
// on the instance; nothing is shared across trackers.
type Tracker struct {
	sess      Session
	conn      *Connection
	reg       *FrameContextRegistry
	handles   *ObjectHandleCache
	infoCache *elementInfoCache
	highlight *HighlightDiffer
	hit       *HitTester
	extractor *ElementInfoExtractor

	evalTimeout time.Duration

	hoverMu sync.Mutex
	hoverCh chan HoverNotification

	unsubscribe []func()
	closeOnce   sync.Once
}

// New wires a tracker over an attached-or-attachable session and subscribes
// to the protocol events that drive its caches. The session is not touched
// until the first operation needs it.
func New(sess Session, opts Options) *Tracker {
	if opts.HandleCacheSize <= 0 {
		opts.HandleCacheSize = defaultHandleCacheSize
	}
	if opts.InfoCacheSize <= 0 {
		opts.InfoCacheSize = defaultInfoCacheSize
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = 5 * time.Second
	}

	t := &Tracker{
		sess:        sess,
		conn:        NewConnection(sess),
		reg:         NewFrameContextRegistry(opts.IsolatedWorldName),
		handles:     NewObjectHandleCache(opts.HandleCacheSize),
		infoCache:   newElementInfoCache(opts.InfoCacheSize),
		evalTimeout: opts.EvalTimeout,
		hoverCh:     make(chan HoverNotification, 1),
	}
	// Handles the cache stops tracking while their context lives are released
	// remotely so they do not pin nodes in the browser until context death.
	t.handles.SetReleaser(func(objectID runtime.RemoteObjectID) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), opts.EvalTimeout)
			defer cancel()
			if err := sess.ReleaseObject(ctx, objectID); err != nil {
				slog.Debug("tracker handle release failed", "object_id", objectID, "error", err)
			}
		}()
	})
	t.highlight = NewHighlightDiffer(t.conn, t.reg, t.handles, sess)
	t.hit = newHitTester(t.conn, t.reg, t.handles, t.highlight, sess, t.infoCache, opts.ThrottleInterval, opts.EvalTimeout, t.publishHover)
	walker := NewComponentTreeWalker(sess)
	t.extractor = NewElementInfoExtractor(t.conn, t.reg, t.handles, t.infoCache, walker, sess)

	t.conn.setHooks(t.resetAll, t.loadFrameTree)
	t.subscribeEvents()
	return t
}

// SetContextSelection enables or disables inspection mode.
func (t *Tracker) SetContextSelection(active bool) {
	t.hit.SetActive(active)
}

// UpdateMousePosition feeds the latest pointer position into the hit tester.
func (t *Tracker) UpdateMousePosition(x, y float64) {
	t.hit.UpdateMousePosition(x, y)
}

// ClearMousePosition forgets the pointer and clears any hover.
func (t *Tracker) ClearMousePosition() {
	t.hit.ClearMousePosition()
}

// CurrentlyHoveredElementID returns the hovered element's string identity,
// empty when nothing is hovered.
func (t *Tracker) CurrentlyHoveredElementID() string {
	hover := t.hit.Hover()
	if hover == nil {
		return ""
	}
	return hover.NodeID
}

// CollectHoveredElementInfo extracts the full element payload for the current
// hover. Nil when nothing is hovered or the environment cannot produce it.
func (t *Tracker) CollectHoveredElementInfo(ctx context.Context) (*SelectedElement, error) {
	return t.extractor.Extract(ctx, t.hit.Hover())
}

// UpdateHighlights converges the page's selected marks to the given set.
func (t *Tracker) UpdateHighlights(ctx context.Context, elements []SelectedElement, scopeID string) {
	t.highlight.Apply(ctx, elements, scopeID)
}

// ScrollToElement scrolls the page so the node becomes visible.
func (t *Tracker) ScrollToElement(ctx context.Context, nodeID cdp.BackendNodeID, frameID cdp.FrameID) bool {
	if nodeID == 0 {
		return false
	}
	if err := t.conn.EnsureReady(ctx); err != nil {
		slog.Debug("tracker scroll skipped", "error", err)
		return false
	}
	if err := t.sess.ScrollIntoViewIfNeeded(ctx, nodeID); err != nil {
		slog.Debug("tracker scroll failed", "frame_id", frameID, "node_id", nodeID, "error", err)
		return false
	}
	return true
}

// CheckFrameValidity reports whether the registry's frame still matches the
// expected location by scheme, host and path. Hash and query are ignored:
// in-page navigation does not invalidate a frame reference.
func (t *Tracker) CheckFrameValidity(frameID cdp.FrameID, expectedLocation string) bool {
	info, ok := t.reg.Frame(frameID)
	if !ok {
		return false
	}
	current, err := url.Parse(info.URL)
	if err != nil {
		return false
	}
	expected, err := url.Parse(expectedLocation)
	if err != nil {
		return false
	}
	return current.Scheme == expected.Scheme &&
		current.Host == expected.Host &&
		current.Path == expected.Path
}

// CheckElementExists reports whether the node is still connected to its
// document. Any failure along the way means "no".
func (t *Tracker) CheckElementExists(ctx context.Context, nodeID cdp.BackendNodeID, frameID cdp.FrameID) bool {
	if nodeID == 0 {
		return false
	}
	if err := t.conn.EnsureReady(ctx); err != nil {
		return false
	}
	contextID := t.reg.BestContext(frameID)
	if contextID == 0 {
		return false
	}
	objectID, err := t.handles.Resolve(ctx, t.sess, t.reg, nodeID, contextID)
	if err != nil {
		return false
	}
	raw, err := t.sess.CallFunctionOn(ctx, objectID, scriptIsConnected, nil)
	if err != nil {
		return false
	}
	var connected bool
	if err := json.Unmarshal(raw, &connected); err != nil {
		return false
	}
	return connected
}

// IframeOffsetInMainFrame walks the frame's ancestor chain, accumulating each
// hosting iframe's border-quad top-left corner. Returns nil for the main
// frame and for frames whose ancestry cannot be resolved.
func (t *Tracker) IframeOffsetInMainFrame(ctx context.Context, frameID cdp.FrameID) *Offset {
	info, ok := t.reg.Frame(frameID)
	if !ok || info.IsMainFrame {
		return nil
	}
	if err := t.conn.EnsureReady(ctx); err != nil {
		slog.Debug("tracker iframe offset skipped", "error", err)
		return nil
	}

	var total Offset
	current := frameID
	for depth := 0; depth < maxFrameWalkDepth; depth++ {
		parent := t.reg.ParentOf(current)
		if parent == "" {
			if current == t.reg.MainFrameID() {
				return &total
			}
			return nil
		}
		ownerNode, err := t.sess.GetFrameOwner(ctx, current)
		if err != nil {
			slog.Debug("tracker frame owner lookup failed", "frame_id", current, "error", err)
			return nil
		}
		border, err := t.sess.GetBoxModelBorder(ctx, ownerNode)
		if err != nil {
			slog.Debug("tracker iframe box model failed", "frame_id", current, "error", err)
			return nil
		}
		total.Left += border[0]
		total.Top += border[1]
		current = parent
	}
	return nil
}

// HoverChanges exposes the hover-changed notifications. The channel holds at
// most one pending notification; a newer hover replaces an unconsumed one.
func (t *Tracker) HoverChanges() <-chan HoverNotification {
	return t.hoverCh
}

// Status summarises tracker health.
func (t *Tracker) Status() Status {
	frames, contexts := t.reg.Counts()
	return Status{
		Ready:          t.conn.Ready(),
		Frames:         frames,
		Contexts:       contexts,
		HoveredElement: t.CurrentlyHoveredElementID(),
		Highlights:     t.highlight.Count(),
		CachedHandles:  t.handles.Len(),
		ScriptsVersion: scriptsVersion,
	}
}

// Close tears the tracker down: event subscriptions removed, timers canceled.
// The underlying session is left for its owner to close.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		for _, unsub := range t.unsubscribe {
			unsub()
		}
		t.unsubscribe = nil
		t.hit.Close()
	})
}

// publishHover pushes a hover-changed notification, replacing any unconsumed
// one so slow consumers only ever see the newest hover.
func (t *Tracker) publishHover(elementID string) {
	t.hoverMu.Lock()
	defer t.hoverMu.Unlock()
	note := HoverNotification{ElementID: elementID}
	select {
	case t.hoverCh <- note:
	default:
		select {
		case <-t.hoverCh:
		default:
		}
		select {
		case t.hoverCh <- note:
		default:
		}
	}
}

// loadFrameTree snapshots the frame hierarchy right after domains come up.
func (t *Tracker) loadFrameTree(ctx context.Context) {
	tree, err := t.sess.GetFrameTree(ctx)
	if err != nil {
		slog.Debug("tracker frame tree snapshot failed", "error", err)
		return
	}
	t.reg.InitializeFromFrameTree(tree)
}

// resetAll is the single full-reset path, invoked synchronously when the
// debugging channel dies. Page-side state died with the channel, so nothing
// is unmarked remotely.
func (t *Tracker) resetAll() {
	t.reg.Reset()
	t.handles.Reset()
	t.infoCache.reset()
	t.highlight.Reset()
	t.hit.ClearHover(false)
}

// OperationTimeout returns the per-operation deadline callers should apply
// when they have no better bound of their own.
func (t *Tracker) OperationTimeout() time.Duration {
	return t.evalTimeout
}
