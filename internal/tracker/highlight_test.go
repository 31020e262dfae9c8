package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

func cdpFrame(id string) cdp.FrameID { return cdp.FrameID(id) }

func cdpNode(id int64) cdp.BackendNodeID { return cdp.BackendNodeID(id) }

type highlightFixture struct {
	sess      *fakeSession
	reg       *FrameContextRegistry
	highlight *HighlightDiffer
}

func newHighlightFixture(t *testing.T) *highlightFixture {
	t.Helper()
	f := &highlightFixture{sess: newFakeSession()}
	f.reg = NewFrameContextRegistry("world")
	f.reg.HandleFrameNavigated(cdpcontrol.Frame{ID: "f1", URL: "https://app.test/"})
	f.reg.HandleContextCreated(contextDescription{ID: 1, Name: "world", FrameID: "f1"})

	conn := NewConnection(f.sess)
	handles := NewObjectHandleCache(10)
	f.highlight = NewHighlightDiffer(conn, f.reg, handles, f.sess)
	return f
}

func selected(frameID string, nodeID int64, scope string) SelectedElement {
	return SelectedElement{
		ID:            elementID(cdpFrame(frameID), cdpNode(nodeID)),
		BackendNodeID: cdpNode(nodeID),
		FrameID:       cdpFrame(frameID),
		ScopeID:       scope,
	}
}

func TestApplyMinimalDiff(t *testing.T) {
	f := newHighlightFixture(t)
	ctx := context.Background()

	f.highlight.Apply(ctx, []SelectedElement{selected("f1", 10, "s1"), selected("f1", 11, "s1")}, "s1")
	if got := len(f.sess.toggleCalls()); got != 2 {
		t.Fatalf("initial apply toggles = %d, want 2 marks", got)
	}

	f.highlight.Apply(ctx, []SelectedElement{selected("f1", 11, "s1"), selected("f1", 12, "s1")}, "s1")
	toggles := f.sess.toggleCalls()[2:]
	if len(toggles) != 2 {
		t.Fatalf("second apply toggles = %d, want exactly one unmark and one mark", len(toggles))
	}

	var marks, unmarks []runtime.RemoteObjectID
	for _, c := range toggles {
		if c.args[1].Value == true {
			marks = append(marks, c.objectID)
		} else {
			unmarks = append(unmarks, c.objectID)
		}
	}
	if len(unmarks) != 1 || unmarks[0] != "obj-10-1" {
		t.Fatalf("unmarks = %v, want only node 10", unmarks)
	}
	if len(marks) != 1 || marks[0] != "obj-12-1" {
		t.Fatalf("marks = %v, want only node 12", marks)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newHighlightFixture(t)
	ctx := context.Background()
	set := []SelectedElement{selected("f1", 10, "s1")}

	f.highlight.Apply(ctx, set, "s1")
	first := len(f.sess.toggleCalls())
	f.highlight.Apply(ctx, set, "s1")

	if got := len(f.sess.toggleCalls()); got != first {
		t.Fatalf("second identical apply produced %d extra toggles", got-first)
	}
}

func TestApplyEmptyOverEmptyTouchesNothing(t *testing.T) {
	f := newHighlightFixture(t)

	f.highlight.Apply(context.Background(), nil, "s1")

	f.sess.mu.Lock()
	defer f.sess.mu.Unlock()
	if f.sess.attachCalls != 0 {
		t.Fatal("empty-over-empty apply must not touch the connection")
	}
}

func TestApplyFiltersByScope(t *testing.T) {
	f := newHighlightFixture(t)

	f.highlight.Apply(context.Background(), []SelectedElement{
		selected("f1", 10, "s1"),
		selected("f1", 11, "other"),
	}, "s1")

	if got := f.highlight.Count(); got != 1 {
		t.Fatalf("highlighted = %d, want only the matching scope", got)
	}
}

func TestApplyRetriesAfterConnectionNotReady(t *testing.T) {
	f := newHighlightFixture(t)
	f.sess.attachErr = errors.New("no such target")
	set := []SelectedElement{selected("f1", 10, "s1")}

	f.highlight.Apply(context.Background(), set, "s1")
	if got := len(f.sess.toggleCalls()); got != 0 {
		t.Fatalf("toggles while not ready = %d, want 0", got)
	}
	if got := f.highlight.Count(); got != 0 {
		t.Fatalf("recorded set = %d after a skipped diff, want 0", got)
	}

	f.sess.mu.Lock()
	f.sess.attachErr = nil
	f.sess.mu.Unlock()

	f.highlight.Apply(context.Background(), set, "s1")
	toggles := f.sess.toggleCalls()
	if len(toggles) != 1 || toggles[0].objectID != "obj-10-1" {
		t.Fatalf("toggles after recovery = %+v, want the deferred mark", toggles)
	}
	if got := f.highlight.Count(); got != 1 {
		t.Fatalf("recorded set = %d after recovery, want 1", got)
	}
}

func TestApplySkipsFailedPairAndContinues(t *testing.T) {
	f := newHighlightFixture(t)
	// Node 10 lives in a frame with no isolated context.
	f.reg.HandleFrameNavigated(cdpcontrol.Frame{ID: "f2", ParentID: "f1", URL: "https://app.test/frame"})

	f.highlight.Apply(context.Background(), []SelectedElement{
		selected("f2", 10, "s1"),
		selected("f1", 11, "s1"),
	}, "s1")

	toggles := f.sess.toggleCalls()
	if len(toggles) != 1 || toggles[0].objectID != "obj-11-1" {
		t.Fatalf("toggles = %+v, want the resolvable pair only", toggles)
	}
}
