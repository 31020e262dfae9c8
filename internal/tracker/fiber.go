package tracker

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/chromedp/cdproto/runtime"
)

// ComponentTreeWalker reads a framework's internal per-node tree through a
// main-world handle and reduces the raw ancestor records to a parent-linked
// ownership chain. The walk happens in the page; the reduction is pure Go on
// the transferred records.
type ComponentTreeWalker struct {
	sess Session
}

func NewComponentTreeWalker(sess Session) *ComponentTreeWalker {
	return &ComponentTreeWalker{sess: sess}
}

// Walk collects the node's ancestor records through the main-world handle and
// reduces them. Returns nil when the node carries no framework bookkeeping at
// all, or when nothing in the chain is a nameable component.
func (w *ComponentTreeWalker) Walk(ctx context.Context, objectID runtime.RemoteObjectID) (*ComponentChain, error) {
	raw, err := w.sess.CallFunctionOn(ctx, objectID, scriptCollectFiberAncestors, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var records []FiberRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return reduceFiberChain(records), nil
}

// primitiveWrapperRe matches resolved names of the framework's primitive
// wrapper components, which add noise without naming anything the UI wants.
var primitiveWrapperRe = regexp.MustCompile(`^Primitive(\.|$)`)

type reducedComponent struct {
	name     string
	isServer bool
}

// reduceFiberChain folds a flat, nearest-first ancestor list into a
// parent-linked chain. A record counts as a component when it is
// server-flagged with an owner name, or when it carries any type or display
// name; records with neither are non-component roots and are skipped. This is
// pure computation: malformed shapes reduce to nothing rather than raising.
func reduceFiberChain(records []FiberRecord) *ComponentChain {
	var components []reducedComponent
	seenServer := make(map[string]bool)

	for _, rec := range records {
		isServer := rec.OwnerEnv == "Server" && rec.OwnerName != ""
		hasName := rec.TypeName != "" || rec.TypeDisplayName != "" ||
			rec.ElementTypeName != "" || rec.ElementTypeDisplayName != ""
		if !isServer && !hasName {
			continue
		}

		name := componentDisplayName(rec, isServer)
		if primitiveWrapperRe.MatchString(name) {
			continue
		}
		if isServer {
			// Server frameworks expose the same ownership boundary on many
			// adjacent records; only the first occurrence of a name survives.
			if seenServer[name] {
				continue
			}
			seenServer[name] = true
		}
		components = append(components, reducedComponent{name: name, isServer: isServer})
	}

	// Fold root-first so each node links to the chain built above it, leaving
	// the nearest component at the head.
	var chain *ComponentChain
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if chain != nil && c.isServer && chain.IsServerComponent && chain.ComponentName == c.name {
			continue
		}
		chain = &ComponentChain{
			ComponentName:     c.name,
			IsServerComponent: c.isServer,
			Parent:            chain,
		}
	}
	return chain
}

func componentDisplayName(rec FiberRecord, isServer bool) string {
	if isServer && rec.OwnerName != "" {
		return rec.OwnerName
	}
	switch {
	case rec.TypeDisplayName != "":
		return rec.TypeDisplayName
	case rec.TypeName != "":
		return rec.TypeName
	case rec.ElementTypeDisplayName != "":
		return rec.ElementTypeDisplayName
	case rec.ElementTypeName != "":
		return rec.ElementTypeName
	}
	return "Anonymous"
}
