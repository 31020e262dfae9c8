package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

// HitTester converts raw pointer coordinates into "the node under the
// pointer" at a bounded rate and owns the tracker's single HoverState.
//
// Scheduling is a throttle with trailing catch-up, not a debounce: a test
// fires immediately when the interval has elapsed since the last one,
// otherwise one deferred timer is armed for the remaining wait. Tests never
// overlap; if the pointer moves while a test is in flight, another cycle is
// scheduled as soon as it completes, so the last position is always
// eventually tested.
type HitTester struct {
	conn      *Connection
	reg       *FrameContextRegistry
	handles   *ObjectHandleCache
	highlight *HighlightDiffer
	sess      Session
	infoCache *elementInfoCache

	interval    time.Duration
	evalTimeout time.Duration
	now         func() time.Time

	// notify publishes a hover-changed element id upward ("" = cleared).
	notify func(elementID string)

	mu       sync.Mutex
	active   bool
	hasPos   bool
	x, y     float64
	lastFire time.Time
	inFlight bool
	moved    bool
	timer    *time.Timer

	hover *HoverState
}

func newHitTester(conn *Connection, reg *FrameContextRegistry, handles *ObjectHandleCache, highlight *HighlightDiffer, sess Session, infoCache *elementInfoCache, interval, evalTimeout time.Duration, notify func(string)) *HitTester {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &HitTester{
		conn:        conn,
		reg:         reg,
		handles:     handles,
		highlight:   highlight,
		sess:        sess,
		infoCache:   infoCache,
		interval:    interval,
		evalTimeout: evalTimeout,
		now:         time.Now,
		notify:      notify,
	}
}

// SetActive turns hit testing on or off. Going active warms the connection;
// going inactive cancels pending timers and clears the pointer and hover.
func (h *HitTester) SetActive(active bool) {
	h.mu.Lock()
	if h.active == active {
		h.mu.Unlock()
		return
	}
	h.active = active
	if !active {
		h.hasPos = false
		h.moved = false
		if h.timer != nil {
			h.timer.Stop()
			h.timer = nil
		}
	}
	h.mu.Unlock()

	if active {
		go func() {
			ctx, cancel := h.opContext()
			defer cancel()
			if err := h.conn.EnsureReady(ctx); err != nil {
				slog.Debug("tracker activation warmup skipped", "error", err)
			}
		}()
		return
	}
	h.ClearHover(true)
}

// UpdateMousePosition records the latest pointer position and schedules a
// hit test under the throttle.
func (h *HitTester) UpdateMousePosition(x, y float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.x, h.y = x, y
	h.hasPos = true
	if !h.active {
		return
	}
	if h.inFlight {
		// The running test reschedules on completion.
		h.moved = true
		return
	}
	h.fireOrArmLocked()
}

// ClearMousePosition forgets the pointer and clears the hover.
func (h *HitTester) ClearMousePosition() {
	h.mu.Lock()
	h.hasPos = false
	h.moved = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()
	h.ClearHover(true)
}

// Hover returns a copy of the current hover state, nil when nothing is
// hovered.
func (h *HitTester) Hover() *HoverState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hover == nil {
		return nil
	}
	copied := *h.hover
	return &copied
}

// ClearHover drops the hover state, best-effort unmarking the overlay.
// A notification is published only when there was a hover to clear.
func (h *HitTester) ClearHover(unmark bool) {
	h.mu.Lock()
	prev := h.hover
	h.hover = nil
	h.mu.Unlock()
	if prev == nil {
		return
	}
	if unmark {
		ctx, cancel := h.opContext()
		if err := h.highlight.toggle(ctx, prev.FrameID, prev.BackendNodeID, markHover, false); err != nil {
			slog.Debug("tracker hover unmark failed", "error", err)
		}
		cancel()
	}
	h.notify("")
}

// ClearHoverIfFrame clears the hover when it points into the given frame.
// Used by frame-teardown cascades, where unmarking is pointless.
func (h *HitTester) ClearHoverIfFrame(frameID cdp.FrameID) {
	h.mu.Lock()
	prev := h.hover
	if prev == nil || prev.FrameID != frameID {
		h.mu.Unlock()
		return
	}
	h.hover = nil
	h.mu.Unlock()
	h.notify("")
}

// Close cancels timers and deactivates without touching the page.
func (h *HitTester) Close() {
	h.mu.Lock()
	h.active = false
	h.hasPos = false
	h.moved = false
	h.hover = nil
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()
}

// fireDelay computes how long to wait before the next test may fire. Zero
// means fire now. Kept pure so the gate is testable without sleeping.
func fireDelay(now, lastFire time.Time, interval time.Duration) time.Duration {
	if lastFire.IsZero() {
		return 0
	}
	elapsed := now.Sub(lastFire)
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

func (h *HitTester) fireOrArmLocked() {
	delay := fireDelay(h.now(), h.lastFire, h.interval)
	if delay <= 0 {
		h.startTestLocked()
		return
	}
	if h.timer == nil {
		h.timer = time.AfterFunc(delay, h.timerFired)
	}
}

func (h *HitTester) timerFired() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = nil
	if !h.active || !h.hasPos {
		return
	}
	if h.inFlight {
		h.moved = true
		return
	}
	h.startTestLocked()
}

func (h *HitTester) startTestLocked() {
	h.inFlight = true
	h.lastFire = h.now()
	x, y := h.x, h.y
	go h.runTest(x, y)
}

func (h *HitTester) runTest(x, y float64) {
	ctx, cancel := h.opContext()
	h.testOnce(ctx, x, y)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight = false
	if h.moved {
		h.moved = false
		if h.active && h.hasPos {
			h.fireOrArmLocked()
		}
	}
}

// testOnce performs one hit-test cycle. Every failure here is an
// environmental race (navigation, context churn) and only quiets the hover;
// nothing propagates.
func (h *HitTester) testOnce(ctx context.Context, x, y float64) {
	if err := h.conn.EnsureReady(ctx); err != nil {
		slog.Debug("tracker hit test skipped", "error", err)
		return
	}

	metrics, err := h.sess.GetLayoutMetrics(ctx)
	if err != nil {
		slog.Debug("tracker layout metrics failed", "error", err)
		return
	}

	nodeID, frameID, err := h.sess.GetNodeForLocation(ctx, int64(x+metrics.ScrollX), int64(y+metrics.ScrollY))
	if err != nil || nodeID == 0 {
		// The pointer left the content. Expected, not an error: clear and
		// stop instead of firing into empty space.
		h.ClearHover(true)
		return
	}

	// Main-frame hits sometimes omit the frame id.
	if frameID == "" {
		frameID = h.reg.MainFrameID()
	}
	if frameID == "" {
		frameID = h.reg.AnyFrameID()
	}
	if frameID == "" {
		return
	}

	h.mu.Lock()
	prev := h.hover
	if prev != nil && prev.BackendNodeID == nodeID && prev.FrameID == frameID {
		h.mu.Unlock()
		return
	}
	next := &HoverState{
		NodeID:        elementID(frameID, nodeID),
		BackendNodeID: nodeID,
		FrameID:       frameID,
	}
	h.hover = next
	h.mu.Unlock()

	if prev != nil {
		if err := h.highlight.toggle(ctx, prev.FrameID, prev.BackendNodeID, markHover, false); err != nil {
			slog.Debug("tracker hover unmark failed", "error", err)
		}
		// The cached descriptor for the departed element goes stale the
		// moment interaction moves on; other entries stay valid.
		h.infoCache.delete(prev.BackendNodeID, prev.FrameID)
	}
	if err := h.highlight.toggle(ctx, frameID, nodeID, markHover, true); err != nil {
		slog.Debug("tracker hover mark failed", "error", err)
	}
	h.notify(next.NodeID)
}

func (h *HitTester) opContext() (context.Context, context.CancelFunc) {
	timeout := h.evalTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
