package tracker

import (
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

// Rect is a bounding rectangle in page coordinates.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementDescriptor is the serializable payload the isolated sandbox's
// extraction bridge returns for one DOM node. This schema is part of the
// wire contract with the injected scripts; every field crosses the sandbox
// boundary by value.
type ElementDescriptor struct {
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Rect       *Rect             `json:"rect,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
}

// FiberRecord is one ancestor record from the framework's internal tree,
// extracted in the main world and transferred by value. All fields are
// best-effort; a record whose extraction threw is all-empty.
type FiberRecord struct {
	TypeName               string `json:"typeName,omitempty"`
	TypeDisplayName        string `json:"typeDisplayName,omitempty"`
	ElementTypeName        string `json:"elementTypeName,omitempty"`
	ElementTypeDisplayName string `json:"elementTypeDisplayName,omitempty"`
	OwnerName              string `json:"ownerName,omitempty"`
	OwnerEnv               string `json:"ownerEnv,omitempty"`
}

// ComponentChain is a parent-linked ownership chain, nearest enclosing
// component first. It models the single path from a node to the tree root,
// matching how the consuming UI renders breadcrumbs.
type ComponentChain struct {
	ComponentName     string          `json:"component_name"`
	IsServerComponent bool            `json:"is_server_component,omitempty"`
	Parent            *ComponentChain `json:"parent,omitempty"`
}

// SelectedElement is the value returned to collaborators for one inspected
// element: sandbox-extracted descriptor fields, main-world enrichment, and
// tracker-assigned identity. The tracker retains no reference after
// returning it, aside from the read-through info cache.
type SelectedElement struct {
	ID            string            `json:"id"`
	BackendNodeID cdp.BackendNodeID `json:"backend_node_id"`
	FrameID       cdp.FrameID       `json:"frame_id"`
	IsMainFrame   bool              `json:"is_main_frame"`
	FrameLocation string            `json:"frame_location,omitempty"`
	FrameTitle    string            `json:"frame_title,omitempty"`
	ScopeID       string            `json:"scope_id,omitempty"`

	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Rect       *Rect             `json:"rect,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`

	FrameworkInfo    *ComponentChain `json:"framework_info,omitempty"`
	OwnPropertyNames []string        `json:"own_property_names,omitempty"`
}

// HoverState identifies the single currently hovered node. Zero or one
// instance is live at a time.
type HoverState struct {
	NodeID        string            `json:"node_id"`
	BackendNodeID cdp.BackendNodeID `json:"backend_node_id"`
	FrameID       cdp.FrameID       `json:"frame_id"`
}

// HoverNotification is pushed upward when the hovered element changes.
// An empty ElementID means the hover cleared.
type HoverNotification struct {
	ElementID string `json:"element_id,omitempty"`
}

// FrameInfo is the registry's view of one frame.
type FrameInfo struct {
	FrameID     cdp.FrameID `json:"frame_id"`
	URL         string      `json:"url"`
	Title       string      `json:"title,omitempty"`
	IsMainFrame bool        `json:"is_main_frame"`
	ParentID    cdp.FrameID `json:"parent_frame_id,omitempty"`
}

// Offset is an iframe's accumulated position inside the main frame.
type Offset struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// Status summarises tracker health for the control API.
type Status struct {
	Ready          bool   `json:"ready"`
	Frames         int    `json:"frames"`
	Contexts       int    `json:"contexts"`
	HoveredElement string `json:"hovered_element,omitempty"`
	Highlights     int    `json:"highlights"`
	CachedHandles  int    `json:"cached_handles"`
	ScriptsVersion string `json:"scripts_version"`
}

// elementID builds the tracker-assigned string identity for a node. The id
// is stable across extractions as long as the node keeps its backend id.
func elementID(frameID cdp.FrameID, nodeID cdp.BackendNodeID) string {
	return fmt.Sprintf("%s:%d", frameID, nodeID)
}

type contextKind int

const (
	contextUnknown contextKind = iota
	contextIsolated
	contextMainWorld
)

// contextDescription is the decoded shape of Runtime.executionContextCreated.
type contextDescription struct {
	ID        runtime.ExecutionContextID
	Name      string
	FrameID   cdp.FrameID
	IsDefault bool
	AuxType   string
}
