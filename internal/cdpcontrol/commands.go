package cdpcontrol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

// Frame is the subset of a CDP frame record the tracker cares about.
type Frame struct {
	ID       cdp.FrameID `json:"id"`
	ParentID cdp.FrameID `json:"parentId,omitempty"`
	URL      string      `json:"url"`
}

// UnmarshalJSON decodes the frame ids through plain strings. cdproto's
// FrameID unmarshaler strips quotes only when the buffer is longer than two
// bytes, so a JSON "" would otherwise decode to a literal two-character
// quote pair and break empty-parent (main frame) detection.
func (f *Frame) UnmarshalJSON(buf []byte) error {
	var raw struct {
		ID       string `json:"id"`
		ParentID string `json:"parentId"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(buf, &raw); err != nil {
		return err
	}
	f.ID = cdp.FrameID(raw.ID)
	f.ParentID = cdp.FrameID(raw.ParentID)
	f.URL = raw.URL
	return nil
}

// FrameTree is a snapshot of the inspected surface's frame hierarchy.
type FrameTree struct {
	Frame       Frame        `json:"frame"`
	ChildFrames []*FrameTree `json:"childFrames,omitempty"`
}

// LayoutMetrics carries the scroll offsets of the main frame's viewport.
type LayoutMetrics struct {
	ScrollX float64
	ScrollY float64
}

// CallArgument is one by-value argument for Runtime.callFunctionOn. The value
// field is always emitted: false and null are meaningful argument values.
type CallArgument struct {
	Value any `json:"value"`
}

// EnableDomains enables the protocol domains the tracker depends on: DOM for
// node resolution, Page for frame lifecycle and layout metrics, Runtime for
// execution-context discovery and remote function invocation.
func (s *Session) EnableDomains(ctx context.Context) error {
	for _, method := range []string{"DOM.enable", "Page.enable", "Runtime.enable"} {
		if _, err := s.call(ctx, method, nil); err != nil {
			return NewError(CodeCDPUnavailable, method, err)
		}
	}
	return nil
}

// GetFrameTree retrieves the current frame hierarchy snapshot.
func (s *Session) GetFrameTree(ctx context.Context) (*FrameTree, error) {
	raw, err := s.call(ctx, "Page.getFrameTree", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		FrameTree *FrameTree `json:"frameTree"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal frame tree: %w", err)
	}
	if resp.FrameTree == nil {
		return nil, fmt.Errorf("empty frame tree")
	}
	return resp.FrameTree, nil
}

// GetNodeForLocation hit-tests the given page coordinates. A zero backend
// node id with a nil error means no node occupies that point.
func (s *Session) GetNodeForLocation(ctx context.Context, x, y int64) (cdp.BackendNodeID, cdp.FrameID, error) {
	params := struct {
		X                         int64 `json:"x"`
		Y                         int64 `json:"y"`
		IncludeUserAgentShadowDOM bool  `json:"includeUserAgentShadowDOM"`
	}{X: x, Y: y}

	raw, err := s.call(ctx, "DOM.getNodeForLocation", params)
	if err != nil {
		return 0, "", err
	}
	var resp struct {
		BackendNodeID cdp.BackendNodeID `json:"backendNodeId"`
		FrameID       string            `json:"frameId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, "", fmt.Errorf("unmarshal node for location: %w", err)
	}
	return resp.BackendNodeID, cdp.FrameID(resp.FrameID), nil
}

// ResolveNode resolves a backend node id into a remote object handle valid
// within the given execution context.
func (s *Session) ResolveNode(ctx context.Context, nodeID cdp.BackendNodeID, contextID runtime.ExecutionContextID) (runtime.RemoteObjectID, error) {
	params := struct {
		BackendNodeID      cdp.BackendNodeID          `json:"backendNodeId"`
		ExecutionContextID runtime.ExecutionContextID `json:"executionContextId,omitempty"`
	}{BackendNodeID: nodeID, ExecutionContextID: contextID}

	raw, err := s.call(ctx, "DOM.resolveNode", params)
	if err != nil {
		if IsStaleContext(err) {
			return "", NewError(CodeStaleContext, "resolve node", err)
		}
		return "", err
	}
	var resp struct {
		Object struct {
			ObjectID string `json:"objectId"`
		} `json:"object"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unmarshal resolve node: %w", err)
	}
	if resp.Object.ObjectID == "" {
		return "", NewError(CodeNodeUnresolvable, "node resolved without object id", nil)
	}
	return runtime.RemoteObjectID(resp.Object.ObjectID), nil
}

// CallFunctionOn invokes a function declaration with the resolved object as
// `this` and returns the by-value result payload (JSON), which may be `null`.
func (s *Session) CallFunctionOn(ctx context.Context, objectID runtime.RemoteObjectID, declaration string, args []CallArgument) (json.RawMessage, error) {
	params := struct {
		FunctionDeclaration string                 `json:"functionDeclaration"`
		ObjectID            runtime.RemoteObjectID `json:"objectId"`
		Arguments           []CallArgument         `json:"arguments,omitempty"`
		ReturnByValue       bool                   `json:"returnByValue"`
	}{FunctionDeclaration: declaration, ObjectID: objectID, Arguments: args, ReturnByValue: true}

	raw, err := s.call(ctx, "Runtime.callFunctionOn", params)
	if err != nil {
		if IsStaleContext(err) {
			return nil, NewError(CodeStaleContext, "call function on node", err)
		}
		return nil, err
	}
	return decodeRemoteValue(raw)
}

// Evaluate evaluates an expression in the given execution context and returns
// the by-value result payload.
func (s *Session) Evaluate(ctx context.Context, contextID runtime.ExecutionContextID, expression string) (json.RawMessage, error) {
	params := struct {
		Expression    string                     `json:"expression"`
		ContextID     runtime.ExecutionContextID `json:"contextId,omitempty"`
		ReturnByValue bool                       `json:"returnByValue"`
	}{Expression: expression, ContextID: contextID, ReturnByValue: true}

	raw, err := s.call(ctx, "Runtime.evaluate", params)
	if err != nil {
		if IsStaleContext(err) {
			return nil, NewError(CodeStaleContext, "evaluate", err)
		}
		return nil, err
	}
	return decodeRemoteValue(raw)
}

func decodeRemoteValue(raw json.RawMessage) (json.RawMessage, error) {
	var resp struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal remote value: %w", err)
	}
	if resp.ExceptionDetails != nil {
		detail := resp.ExceptionDetails.Text
		if resp.ExceptionDetails.Exception != nil && resp.ExceptionDetails.Exception.Description != "" {
			detail = resp.ExceptionDetails.Exception.Description
		}
		return nil, NewError(CodeEvalFailure, "remote exception: "+detail, nil)
	}
	return resp.Result.Value, nil
}

// GetLayoutMetrics returns the current scroll offsets of the layout viewport.
func (s *Session) GetLayoutMetrics(ctx context.Context) (LayoutMetrics, error) {
	raw, err := s.call(ctx, "Page.getLayoutMetrics", nil)
	if err != nil {
		return LayoutMetrics{}, err
	}
	var resp struct {
		CSSVisualViewport struct {
			PageX float64 `json:"pageX"`
			PageY float64 `json:"pageY"`
		} `json:"cssVisualViewport"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return LayoutMetrics{}, fmt.Errorf("unmarshal layout metrics: %w", err)
	}
	return LayoutMetrics{ScrollX: resp.CSSVisualViewport.PageX, ScrollY: resp.CSSVisualViewport.PageY}, nil
}

// GetFrameOwner returns the backend node id of the iframe element that hosts
// the given frame in its parent document.
func (s *Session) GetFrameOwner(ctx context.Context, frameID cdp.FrameID) (cdp.BackendNodeID, error) {
	params := struct {
		FrameID cdp.FrameID `json:"frameId"`
	}{FrameID: frameID}

	raw, err := s.call(ctx, "DOM.getFrameOwner", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		BackendNodeID cdp.BackendNodeID `json:"backendNodeId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("unmarshal frame owner: %w", err)
	}
	return resp.BackendNodeID, nil
}

// GetBoxModelBorder returns the border quad of a node as
// [x1,y1,x2,y2,x3,y3,x4,y4], clockwise from the top-left corner.
func (s *Session) GetBoxModelBorder(ctx context.Context, nodeID cdp.BackendNodeID) ([]float64, error) {
	params := struct {
		BackendNodeID cdp.BackendNodeID `json:"backendNodeId"`
	}{BackendNodeID: nodeID}

	raw, err := s.call(ctx, "DOM.getBoxModel", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Model struct {
			Border []float64 `json:"border"`
		} `json:"model"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal box model: %w", err)
	}
	if len(resp.Model.Border) < 2 {
		return nil, fmt.Errorf("box model without border quad")
	}
	return resp.Model.Border, nil
}

// ScrollIntoViewIfNeeded scrolls the node's frame (and ancestors) so the node
// becomes visible.
func (s *Session) ScrollIntoViewIfNeeded(ctx context.Context, nodeID cdp.BackendNodeID) error {
	params := struct {
		BackendNodeID cdp.BackendNodeID `json:"backendNodeId"`
	}{BackendNodeID: nodeID}
	_, err := s.call(ctx, "DOM.scrollIntoViewIfNeeded", params)
	return err
}

// ReleaseObject releases a temporary remote object handle.
func (s *Session) ReleaseObject(ctx context.Context, objectID runtime.RemoteObjectID) error {
	params := struct {
		ObjectID runtime.RemoteObjectID `json:"objectId"`
	}{ObjectID: objectID}
	_, err := s.call(ctx, "Runtime.releaseObject", params)
	return err
}
