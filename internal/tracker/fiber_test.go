package tracker

import "testing"

func chainNames(c *ComponentChain) []string {
	var names []string
	for ; c != nil; c = c.Parent {
		names = append(names, c.ComponentName)
	}
	return names
}

func TestReduceHostRootOnlyReturnsNil(t *testing.T) {
	records := []FiberRecord{{}}
	if got := reduceFiberChain(records); got != nil {
		t.Fatalf("reduce(host root only) = %+v, want nil", got)
	}
	if got := reduceFiberChain(nil); got != nil {
		t.Fatalf("reduce(nil) = %+v, want nil", got)
	}
}

func TestReduceNamePriority(t *testing.T) {
	tests := []struct {
		name string
		rec  FiberRecord
		want string
	}{
		{"server owner wins", FiberRecord{OwnerEnv: "Server", OwnerName: "ProductPage", TypeDisplayName: "Inner"}, "ProductPage"},
		{"display name over name", FiberRecord{TypeName: "t", TypeDisplayName: "Styled(Button)"}, "Styled(Button)"},
		{"type name", FiberRecord{TypeName: "Button"}, "Button"},
		{"element type display name", FiberRecord{ElementTypeDisplayName: "Memo(List)"}, "Memo(List)"},
		{"element type name", FiberRecord{ElementTypeName: "List"}, "List"},
		{"nameless record is not a component", FiberRecord{OwnerEnv: "Server", OwnerName: ""}, ""},
	}
	for _, tt := range tests {
		chain := reduceFiberChain([]FiberRecord{tt.rec})
		if tt.want == "" {
			if chain != nil {
				t.Errorf("%s: got %+v, want nil (not a component)", tt.name, chain)
			}
			continue
		}
		if chain == nil || chain.ComponentName != tt.want {
			t.Errorf("%s: got %+v, want name %q", tt.name, chain, tt.want)
		}
	}
}

func TestReduceAnonymousForNamelessServerOwnerWithType(t *testing.T) {
	// A record that qualifies as a component through its type but has only
	// empty name fields after the server-owner rule falls through.
	chain := reduceFiberChain([]FiberRecord{{TypeName: "div", OwnerEnv: "Server", OwnerName: "Page"}})
	if chain == nil || chain.ComponentName != "Page" {
		t.Fatalf("got %+v, want server owner name Page", chain)
	}
}

func TestReduceDropsPrimitiveWrappers(t *testing.T) {
	records := []FiberRecord{
		{TypeDisplayName: "Primitive.div"},
		{TypeDisplayName: "Primitive"},
		{TypeDisplayName: "PrimitiveButton"},
		{TypeDisplayName: "App"},
	}
	chain := reduceFiberChain(records)
	got := chainNames(chain)
	want := []string{"PrimitiveButton", "App"}
	if len(got) != len(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain = %v, want %v", got, want)
		}
	}
}

func TestReduceServerDedupeByName(t *testing.T) {
	records := []FiberRecord{
		{OwnerEnv: "Server", OwnerName: "Layout"},
		{TypeName: "Card"},
		{OwnerEnv: "Server", OwnerName: "Layout"},
		{OwnerEnv: "Server", OwnerName: "Root"},
	}
	chain := reduceFiberChain(records)
	got := chainNames(chain)
	want := []string{"Layout", "Card", "Root"}
	if len(got) != len(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain = %v, want %v", got, want)
		}
	}
	if !chain.IsServerComponent {
		t.Fatal("head Layout should be flagged as server component")
	}
}

func TestReduceChainLinksNearestFirst(t *testing.T) {
	records := []FiberRecord{
		{TypeName: "Button"},
		{TypeName: "Toolbar"},
		{TypeName: "App"},
		{}, // host root
	}
	chain := reduceFiberChain(records)
	if chain == nil || chain.ComponentName != "Button" {
		t.Fatalf("head = %+v, want nearest ancestor Button", chain)
	}
	if chain.Parent == nil || chain.Parent.ComponentName != "Toolbar" {
		t.Fatalf("second = %+v, want Toolbar", chain.Parent)
	}
	if chain.Parent.Parent == nil || chain.Parent.Parent.ComponentName != "App" {
		t.Fatalf("third = %+v, want App", chain.Parent.Parent)
	}
	if chain.Parent.Parent.Parent != nil {
		t.Fatal("host root must not appear in the chain")
	}
}

func TestReduceEnvTagIsCaseSensitive(t *testing.T) {
	chain := reduceFiberChain([]FiberRecord{{OwnerEnv: "server", OwnerName: "Page"}})
	if chain != nil {
		t.Fatalf("lower-case env tag should not mark a server component, got %+v", chain)
	}
}
