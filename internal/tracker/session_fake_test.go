package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

// fakeSession is the in-memory Session used by the package tests. Behavior
// hooks default to benign success so each test only overrides what it checks.
type fakeSession struct {
	mu sync.Mutex

	attachErr error
	enableErr error

	attachCalls  int
	enableCalls  int
	dropSessions int

	frameTree *cdpcontrol.FrameTree
	metrics   cdpcontrol.LayoutMetrics

	nodeAt     func(x, y int64) (cdp.BackendNodeID, cdp.FrameID, error)
	resolve    func(nodeID cdp.BackendNodeID, contextID runtime.ExecutionContextID) (runtime.RemoteObjectID, error)
	callFn     func(objectID runtime.RemoteObjectID, declaration string, args []cdpcontrol.CallArgument) (json.RawMessage, error)
	evalFn     func(contextID runtime.ExecutionContextID, expression string) (json.RawMessage, error)
	frameOwner func(frameID cdp.FrameID) (cdp.BackendNodeID, error)
	boxModel   func(nodeID cdp.BackendNodeID) ([]float64, error)
	scrollErr  error

	resolveCalls []handleKey
	callLog      []fakeCall

	handlers map[string][]func(json.RawMessage)
}

type fakeCall struct {
	objectID    runtime.RemoteObjectID
	declaration string
	args        []cdpcontrol.CallArgument
}

func newFakeSession() *fakeSession {
	return &fakeSession{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeSession) Attach(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachCalls++
	return f.attachErr
}

func (f *fakeSession) Detach(ctx context.Context) error { return nil }

func (f *fakeSession) DropSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropSessions++
}

func (f *fakeSession) EnableDomains(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enableCalls++
	return f.enableErr
}

func (f *fakeSession) GetFrameTree(ctx context.Context) (*cdpcontrol.FrameTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frameTree == nil {
		return &cdpcontrol.FrameTree{Frame: cdpcontrol.Frame{ID: "main", URL: "about:blank"}}, nil
	}
	return f.frameTree, nil
}

func (f *fakeSession) GetNodeForLocation(ctx context.Context, x, y int64) (cdp.BackendNodeID, cdp.FrameID, error) {
	f.mu.Lock()
	fn := f.nodeAt
	f.mu.Unlock()
	if fn == nil {
		return 0, "", nil
	}
	return fn(x, y)
}

func (f *fakeSession) ResolveNode(ctx context.Context, nodeID cdp.BackendNodeID, contextID runtime.ExecutionContextID) (runtime.RemoteObjectID, error) {
	f.mu.Lock()
	f.resolveCalls = append(f.resolveCalls, handleKey{nodeID: nodeID, contextID: contextID})
	fn := f.resolve
	f.mu.Unlock()
	if fn == nil {
		return runtime.RemoteObjectID(fmt.Sprintf("obj-%d-%d", nodeID, contextID)), nil
	}
	return fn(nodeID, contextID)
}

func (f *fakeSession) CallFunctionOn(ctx context.Context, objectID runtime.RemoteObjectID, declaration string, args []cdpcontrol.CallArgument) (json.RawMessage, error) {
	f.mu.Lock()
	f.callLog = append(f.callLog, fakeCall{objectID: objectID, declaration: declaration, args: args})
	fn := f.callFn
	f.mu.Unlock()
	if fn == nil {
		return json.RawMessage(`true`), nil
	}
	return fn(objectID, declaration, args)
}

func (f *fakeSession) Evaluate(ctx context.Context, contextID runtime.ExecutionContextID, expression string) (json.RawMessage, error) {
	f.mu.Lock()
	fn := f.evalFn
	f.mu.Unlock()
	if fn == nil {
		return json.RawMessage(`""`), nil
	}
	return fn(contextID, expression)
}

func (f *fakeSession) GetLayoutMetrics(ctx context.Context) (cdpcontrol.LayoutMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics, nil
}

func (f *fakeSession) GetFrameOwner(ctx context.Context, frameID cdp.FrameID) (cdp.BackendNodeID, error) {
	f.mu.Lock()
	fn := f.frameOwner
	f.mu.Unlock()
	if fn == nil {
		return 0, fmt.Errorf("no frame owner for %s", frameID)
	}
	return fn(frameID)
}

func (f *fakeSession) GetBoxModelBorder(ctx context.Context, nodeID cdp.BackendNodeID) ([]float64, error) {
	f.mu.Lock()
	fn := f.boxModel
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no box model for node %d", nodeID)
	}
	return fn(nodeID)
}

func (f *fakeSession) ScrollIntoViewIfNeeded(ctx context.Context, nodeID cdp.BackendNodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scrollErr
}

func (f *fakeSession) ReleaseObject(ctx context.Context, objectID runtime.RemoteObjectID) error {
	return nil
}

func (f *fakeSession) OnEvent(method string, fn func(params json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = append(f.handlers[method], fn)
	return func() {}
}

// emit synchronously dispatches a fake protocol event.
func (f *fakeSession) emit(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	handlers := append([]func(json.RawMessage){}, f.handlers[method]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(json.RawMessage(data))
	}
}

// toggleCalls returns the (kind, active, objectID) triples of every highlight
// toggle the session saw.
func (f *fakeSession) toggleCalls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.callLog {
		if c.declaration == scriptToggleHighlight {
			out = append(out, c)
		}
	}
	return out
}

var _ Session = (*fakeSession)(nil)
