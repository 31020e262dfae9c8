package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

type extractFixture struct {
	sess      *fakeSession
	reg       *FrameContextRegistry
	handles   *ObjectHandleCache
	info      *elementInfoCache
	extractor *ElementInfoExtractor
}

func newExtractFixture(t *testing.T) *extractFixture {
	t.Helper()
	f := &extractFixture{sess: newFakeSession()}
	f.reg = NewFrameContextRegistry("world")
	f.reg.HandleFrameNavigated(cdpcontrol.Frame{ID: "main", URL: "https://shop.test/cart"})
	f.reg.HandleContextCreated(contextDescription{ID: 1, Name: "world", FrameID: "main"})
	f.reg.HandleContextCreated(contextDescription{ID: 2, IsDefault: true, FrameID: "main"})

	conn := NewConnection(f.sess)
	f.handles = NewObjectHandleCache(10)
	f.info = newElementInfoCache(10)
	walker := NewComponentTreeWalker(f.sess)
	f.extractor = NewElementInfoExtractor(conn, f.reg, f.handles, f.info, walker, f.sess)
	return f
}

func (f *extractFixture) stubPage() {
	f.sess.callFn = func(objectID runtime.RemoteObjectID, declaration string, args []cdpcontrol.CallArgument) (json.RawMessage, error) {
		switch declaration {
		case scriptDescribeElement:
			return json.RawMessage(`{"tag":"button","attributes":{"id":"buy"},"rect":{"top":1,"left":2,"width":30,"height":40}}`), nil
		case scriptCollectFiberAncestors:
			return json.RawMessage(`[{"typeName":"BuyButton"},{"typeName":"App"},{}]`), nil
		case scriptOwnPropertyNames:
			return json.RawMessage(`["__reactProps$abc1"]`), nil
		}
		return json.RawMessage(`null`), nil
	}
	f.sess.evalFn = func(contextID runtime.ExecutionContextID, expression string) (json.RawMessage, error) {
		return json.RawMessage(`"Cart"`), nil
	}
}

func hoverFor(frameID string, nodeID int64) *HoverState {
	return &HoverState{
		NodeID:        elementID(cdpFrame(frameID), cdpNode(nodeID)),
		BackendNodeID: cdpNode(nodeID),
		FrameID:       cdpFrame(frameID),
	}
}

func TestExtractFullElement(t *testing.T) {
	f := newExtractFixture(t)
	f.stubPage()

	el, err := f.extractor.Extract(context.Background(), hoverFor("main", 42))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if el == nil {
		t.Fatal("expected an element")
	}
	if el.ID != "main:42" || el.Tag != "button" || el.Attributes["id"] != "buy" {
		t.Fatalf("descriptor fields wrong: %+v", el)
	}
	if el.Rect == nil || el.Rect.Width != 30 {
		t.Fatalf("rect = %+v, want width 30", el.Rect)
	}
	if el.FrameworkInfo == nil || el.FrameworkInfo.ComponentName != "BuyButton" {
		t.Fatalf("framework info = %+v, want BuyButton head", el.FrameworkInfo)
	}
	if el.FrameworkInfo.Parent == nil || el.FrameworkInfo.Parent.ComponentName != "App" {
		t.Fatalf("framework parent = %+v, want App", el.FrameworkInfo.Parent)
	}
	if len(el.OwnPropertyNames) != 1 || el.OwnPropertyNames[0] != "__reactProps$abc1" {
		t.Fatalf("own property names = %v", el.OwnPropertyNames)
	}
	if !el.IsMainFrame || el.FrameLocation != "https://shop.test/cart" {
		t.Fatalf("frame identity wrong: %+v", el)
	}
	if el.FrameTitle != "Cart" {
		t.Fatalf("frame title = %q, want the live-fetched title", el.FrameTitle)
	}
}

func TestExtractWithoutIsolatedContextReturnsNil(t *testing.T) {
	f := newExtractFixture(t)
	f.stubPage()
	f.reg.DropContext(1)

	el, err := f.extractor.Extract(context.Background(), hoverFor("main", 42))
	if err != nil || el != nil {
		t.Fatalf("extract = %+v, %v; want nil element, nil error", el, err)
	}
}

func TestExtractNullDescriptorReturnsNil(t *testing.T) {
	f := newExtractFixture(t)
	f.sess.callFn = func(objectID runtime.RemoteObjectID, declaration string, args []cdpcontrol.CallArgument) (json.RawMessage, error) {
		return json.RawMessage(`null`), nil
	}

	el, err := f.extractor.Extract(context.Background(), hoverFor("main", 42))
	if err != nil || el != nil {
		t.Fatalf("extract = %+v, %v; want nil, nil when the bridge yields nothing", el, err)
	}
}

func TestExtractMainWorldFailureDegradesGracefully(t *testing.T) {
	f := newExtractFixture(t)
	f.sess.callFn = func(objectID runtime.RemoteObjectID, declaration string, args []cdpcontrol.CallArgument) (json.RawMessage, error) {
		if declaration == scriptDescribeElement {
			return json.RawMessage(`{"tag":"div"}`), nil
		}
		return nil, fmt.Errorf("Cannot find context with specified id")
	}

	el, err := f.extractor.Extract(context.Background(), hoverFor("main", 42))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if el == nil || el.Tag != "div" {
		t.Fatalf("element = %+v, want step-one descriptor preserved", el)
	}
	if el.FrameworkInfo != nil || el.OwnPropertyNames != nil {
		t.Fatalf("enrichment should be absent on main-world failure: %+v", el)
	}
}

func TestExtractServesFromCache(t *testing.T) {
	f := newExtractFixture(t)
	f.stubPage()
	ctx := context.Background()
	hover := hoverFor("main", 42)

	if _, err := f.extractor.Extract(ctx, hover); err != nil {
		t.Fatalf("first extract: %v", err)
	}
	f.sess.mu.Lock()
	callsAfterFirst := len(f.sess.callLog)
	f.sess.mu.Unlock()

	el, err := f.extractor.Extract(ctx, hover)
	if err != nil || el == nil {
		t.Fatalf("cached extract = %+v, %v", el, err)
	}
	f.sess.mu.Lock()
	defer f.sess.mu.Unlock()
	if len(f.sess.callLog) != callsAfterFirst {
		t.Fatal("second extract must be served from cache without protocol calls")
	}
}

func TestExtractNilHover(t *testing.T) {
	f := newExtractFixture(t)
	el, err := f.extractor.Extract(context.Background(), nil)
	if el != nil || err != nil {
		t.Fatalf("extract(nil) = %+v, %v; want nil, nil", el, err)
	}
}
