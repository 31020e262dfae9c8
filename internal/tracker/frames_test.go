package tracker

import (
	"testing"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
)

func TestClassifyContexts(t *testing.T) {
	reg := NewFrameContextRegistry("__shell_inspect_world")

	tests := []struct {
		name string
		desc contextDescription
		want contextKind
	}{
		{"injected world name", contextDescription{Name: "__shell_inspect_world"}, contextIsolated},
		{"isolated aux type", contextDescription{Name: "other", AuxType: "isolated"}, contextIsolated},
		{"default aux type", contextDescription{Name: "page", AuxType: "default"}, contextMainWorld},
		{"isDefault flag", contextDescription{Name: "page", IsDefault: true}, contextMainWorld},
		{"empty name", contextDescription{Name: ""}, contextMainWorld},
		{"extension context", contextDescription{Name: "extension-world", AuxType: "other"}, contextUnknown},
	}
	for _, tt := range tests {
		if got := reg.classify(tt.desc); got != tt.want {
			t.Errorf("%s: classify = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestContextLifecycle(t *testing.T) {
	reg := NewFrameContextRegistry("world")
	reg.HandleContextCreated(contextDescription{ID: 1, Name: "world", FrameID: "f1"})
	reg.HandleContextCreated(contextDescription{ID: 2, IsDefault: true, FrameID: "f1"})

	if got := reg.IsolatedContext("f1"); got != 1 {
		t.Fatalf("isolated context = %d, want 1", got)
	}
	if got := reg.MainWorldContext("f1"); got != 2 {
		t.Fatalf("main-world context = %d, want 2", got)
	}
	if got := reg.BestContext("f1"); got != 1 {
		t.Fatalf("best context = %d, want isolated (1)", got)
	}

	frameID, gone := reg.HandleContextDestroyed(1)
	if frameID != "f1" || gone {
		t.Fatalf("after first destroy: frame=%s gone=%v, want f1 false", frameID, gone)
	}
	if got := reg.BestContext("f1"); got != 2 {
		t.Fatalf("best context after isolated destroy = %d, want main world (2)", got)
	}

	frameID, gone = reg.HandleContextDestroyed(2)
	if frameID != "f1" || !gone {
		t.Fatalf("after second destroy: frame=%s gone=%v, want f1 true", frameID, gone)
	}
	if got := reg.BestContext("f1"); got != 0 {
		t.Fatalf("frame retains context id %d after both destroyed", got)
	}
}

func TestHandleFrameDetachedReturnsContextsAndNullsMainFrame(t *testing.T) {
	reg := NewFrameContextRegistry("world")
	reg.HandleFrameNavigated(cdpcontrol.Frame{ID: "main", URL: "https://app.test/"})
	reg.HandleContextCreated(contextDescription{ID: 7, Name: "world", FrameID: "main"})
	reg.HandleContextCreated(contextDescription{ID: 8, IsDefault: true, FrameID: "main"})

	if got := reg.MainFrameID(); got != "main" {
		t.Fatalf("main frame = %q, want main", got)
	}

	removed := reg.HandleFrameDetached("main")
	if len(removed) != 2 {
		t.Fatalf("removed contexts = %v, want both context ids", removed)
	}
	if got := reg.MainFrameID(); got != "" {
		t.Fatalf("main frame pointer = %q after detach, want empty", got)
	}
	if _, ok := reg.Frame("main"); ok {
		t.Fatal("detached frame still present")
	}
}

func TestInitializeFromFrameTreePreservesTitle(t *testing.T) {
	reg := NewFrameContextRegistry("world")
	reg.HandleTitleUpdated("child", "Checkout")

	reg.InitializeFromFrameTree(&cdpcontrol.FrameTree{
		Frame: cdpcontrol.Frame{ID: "main", URL: "https://shop.test/"},
		ChildFrames: []*cdpcontrol.FrameTree{
			{Frame: cdpcontrol.Frame{ID: "child", ParentID: "main", URL: "https://shop.test/checkout"}},
		},
	})

	info, ok := reg.Frame("child")
	if !ok {
		t.Fatal("child frame missing after tree load")
	}
	if info.Title != "Checkout" {
		t.Fatalf("title = %q, want the earlier title event preserved", info.Title)
	}
	if info.ParentID != "main" || info.IsMainFrame {
		t.Fatalf("child frame identity wrong: %+v", info)
	}
	if main, _ := reg.Frame("main"); !main.IsMainFrame {
		t.Fatal("root of the tree should be the main frame")
	}

	frames, contexts := reg.Counts()
	if frames != 2 || contexts != 0 {
		t.Fatalf("counts = %d frames %d contexts, want 2 and 0", frames, contexts)
	}
}

func TestDropContextClearsPairWithoutFrameRemoval(t *testing.T) {
	reg := NewFrameContextRegistry("world")
	reg.HandleContextCreated(contextDescription{ID: 3, Name: "world", FrameID: "f1"})

	reg.DropContext(3)
	if got := reg.IsolatedContext("f1"); got != 0 {
		t.Fatalf("isolated context = %d after drop, want 0", got)
	}
	if _, ok := reg.Frame("f1"); !ok {
		t.Fatal("frame entry must survive a context drop")
	}
}
