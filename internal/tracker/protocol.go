package tracker

import (
	"context"
	"encoding/json"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

// Session is the protocol surface the tracker consumes. Implemented by
// *cdpcontrol.Session; tests substitute an in-memory fake.
type Session interface {
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	DropSession()
	EnableDomains(ctx context.Context) error
	GetFrameTree(ctx context.Context) (*cdpcontrol.FrameTree, error)
	GetNodeForLocation(ctx context.Context, x, y int64) (cdp.BackendNodeID, cdp.FrameID, error)
	ResolveNode(ctx context.Context, nodeID cdp.BackendNodeID, contextID runtime.ExecutionContextID) (runtime.RemoteObjectID, error)
	CallFunctionOn(ctx context.Context, objectID runtime.RemoteObjectID, declaration string, args []cdpcontrol.CallArgument) (json.RawMessage, error)
	Evaluate(ctx context.Context, contextID runtime.ExecutionContextID, expression string) (json.RawMessage, error)
	GetLayoutMetrics(ctx context.Context) (cdpcontrol.LayoutMetrics, error)
	GetFrameOwner(ctx context.Context, frameID cdp.FrameID) (cdp.BackendNodeID, error)
	GetBoxModelBorder(ctx context.Context, nodeID cdp.BackendNodeID) ([]float64, error)
	ScrollIntoViewIfNeeded(ctx context.Context, nodeID cdp.BackendNodeID) error
	ReleaseObject(ctx context.Context, objectID runtime.RemoteObjectID) error
	OnEvent(method string, fn func(params json.RawMessage)) func()
}

var _ Session = (*cdpcontrol.Session)(nil)
