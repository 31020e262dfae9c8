package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

type connState int

const (
	stateDetached connState = iota
	stateAttaching
	stateAttached // attached, domains not (re-)enabled yet
	stateReady
)

// Connection owns the tracker's debugging-session lifecycle: attach, domain
// enabling, and the single recovery path for a dead channel. It holds no data
// beyond lifecycle flags and is reset atomically on external detach.
type Connection struct {
	sess Session

	mu    sync.Mutex
	state connState

	// onReset clears every downstream cache when the channel dies. Invoked
	// synchronously from the detach handler.
	onReset func()
	// onEnabled runs after domains come up (frame-tree snapshot load).
	onEnabled func(ctx context.Context)
}

func NewConnection(sess Session) *Connection {
	return &Connection{sess: sess}
}

func (c *Connection) setHooks(onReset func(), onEnabled func(ctx context.Context)) {
	c.onReset = onReset
	c.onEnabled = onEnabled
}

// EnsureReady attaches the session if needed and enables the required
// protocol domains. A no-op once ready. Failure clears the ready flag so the
// next call retries; callers treat a returned error as "skip this cycle",
// never as fatal.
func (c *Connection) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateReady {
		c.mu.Unlock()
		return nil
	}
	if c.state == stateAttaching {
		c.mu.Unlock()
		return cdpcontrol.NewError(cdpcontrol.CodeNotReady, "attach in progress", nil)
	}
	needAttach := c.state == stateDetached
	c.state = stateAttaching
	c.mu.Unlock()

	if needAttach {
		if err := c.withRetry(ctx, func(ctx context.Context) error { return c.sess.Attach(ctx) }); err != nil {
			c.setState(stateDetached)
			slog.Warn("tracker attach failed", "error", err)
			return cdpcontrol.NewError(cdpcontrol.CodeNotReady, "attach failed", err)
		}
	}
	c.setState(stateAttached)

	if err := c.withRetry(ctx, func(ctx context.Context) error { return c.sess.EnableDomains(ctx) }); err != nil {
		// Stay attached: execution contexts churn during navigation and the
		// next operation re-enables. Reattaching here would be expensive and
		// racy.
		slog.Warn("tracker domain enable failed", "error", err)
		return cdpcontrol.NewError(cdpcontrol.CodeNotReady, "enable domains failed", err)
	}
	c.setState(stateReady)
	slog.Debug("tracker connection ready")

	if c.onEnabled != nil {
		c.onEnabled(ctx)
	}
	return nil
}

// Ready reports whether the connection is fully enabled.
func (c *Connection) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

func (c *Connection) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// HandleNavigationStarted marks the connection not-ready without detaching:
// the surface's execution contexts are about to be destroyed en masse, so the
// next operation must re-enable domains, but the debugger stays attached.
func (c *Connection) HandleNavigationStarted() {
	c.mu.Lock()
	if c.state == stateReady {
		c.state = stateAttached
	}
	c.mu.Unlock()
	slog.Debug("tracker connection downgraded for navigation")
}

// HandleDetached is the single recovery path for "the debugging channel
// died": the ready flag clears and every downstream cache resets
// synchronously.
func (c *Connection) HandleDetached(reason string) {
	c.mu.Lock()
	c.state = stateDetached
	c.mu.Unlock()
	slog.Info("tracker session detached externally", "reason", reason)
	if c.onReset != nil {
		c.onReset()
	}
}

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// withRetry retries transient channel failures a bounded number of times with
// a short linear backoff. Non-transient errors propagate immediately.
func (c *Connection) withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !cdpcontrol.IsTransient(err) {
			return err
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
