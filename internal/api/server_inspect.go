package api

import (
	"context"
	"net/http"

	"github.com/chromedp/cdproto/cdp"
	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/inspect_agent/internal/tracker"
)

type frameIDInput struct {
	FrameID string `path:"frame_id" doc:"Protocol frame id"`
}

func registerInspectHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body tracker.Status
	}
	huma.Register(api, huma.Operation{OperationID: "inspect-status", Method: http.MethodGet, Path: "/api/v1/inspect/status", Summary: "Tracker status", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = svc.Status()
			return out, nil
		})

	type selectionInput struct {
		Body struct {
			Active bool `json:"active" doc:"Enable or disable element selection mode"`
		}
	}
	type ackOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-selection", Method: http.MethodPost, Path: "/api/v1/inspect/selection", Summary: "Toggle selection mode", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *selectionInput) (*ackOutput, error) {
			svc.SetContextSelection(input.Body.Active)
			out := &ackOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type pointerInput struct {
		Body struct {
			X float64 `json:"x" doc:"Pointer X in viewport coordinates"`
			Y float64 `json:"y" doc:"Pointer Y in viewport coordinates"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "update-pointer", Method: http.MethodPut, Path: "/api/v1/inspect/pointer", Summary: "Update pointer position", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *pointerInput) (*ackOutput, error) {
			svc.UpdateMousePosition(input.Body.X, input.Body.Y)
			out := &ackOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-pointer", Method: http.MethodDelete, Path: "/api/v1/inspect/pointer", Summary: "Clear pointer position", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *struct{}) (*ackOutput, error) {
			svc.ClearMousePosition()
			out := &ackOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type hoveredOutput struct {
		Body struct {
			ElementID string `json:"element_id,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-hovered", Method: http.MethodGet, Path: "/api/v1/inspect/hovered", Summary: "Currently hovered element id", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *struct{}) (*hoveredOutput, error) {
			out := &hoveredOutput{}
			out.Body.ElementID = svc.CurrentlyHoveredElementID()
			return out, nil
		})

	type hoveredElementOutput struct {
		Body struct {
			Element *tracker.SelectedElement `json:"element"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-hovered-element", Method: http.MethodGet, Path: "/api/v1/inspect/hovered/element", Summary: "Full info for the hovered element", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *struct{}) (*hoveredElementOutput, error) {
			el, err := svc.CollectHoveredElementInfo(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &hoveredElementOutput{}
			out.Body.Element = el
			return out, nil
		})

	type highlightsInput struct {
		Body struct {
			Elements []tracker.SelectedElement `json:"elements"`
			ScopeID  string                    `json:"scope_id" doc:"Only elements scoped to this id are highlighted"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "update-highlights", Method: http.MethodPut, Path: "/api/v1/inspect/highlights", Summary: "Converge selected-element highlights", Tags: []string{"Inspect"}},
		func(ctx context.Context, input *highlightsInput) (*ackOutput, error) {
			svc.UpdateHighlights(ctx, input.Body.Elements, input.Body.ScopeID)
			out := &ackOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type scrollInput struct {
		Body struct {
			BackendNodeID int64  `json:"backend_node_id"`
			FrameID       string `json:"frame_id"`
		}
	}
	type boolOutput struct {
		Body struct {
			OK bool `json:"ok"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "scroll-to-element", Method: http.MethodPost, Path: "/api/v1/element/scroll", Summary: "Scroll an element into view", Tags: []string{"Element"}},
		func(ctx context.Context, input *scrollInput) (*boolOutput, error) {
			out := &boolOutput{}
			out.Body.OK = svc.ScrollToElement(ctx, cdp.BackendNodeID(input.Body.BackendNodeID), cdp.FrameID(input.Body.FrameID))
			return out, nil
		})

	type frameCheckInput struct {
		frameIDInput
		ExpectedLocation string `query:"expected_location" doc:"URL the frame is expected to be at (hash/query ignored)"`
	}
	huma.Register(api, huma.Operation{OperationID: "check-frame", Method: http.MethodGet, Path: "/api/v1/frame/{frame_id}/check", Summary: "Check a frame still matches a location", Tags: []string{"Frame"}},
		func(ctx context.Context, input *frameCheckInput) (*boolOutput, error) {
			out := &boolOutput{}
			out.Body.OK = svc.CheckFrameValidity(cdp.FrameID(input.FrameID), input.ExpectedLocation)
			return out, nil
		})

	type elementExistsInput struct {
		BackendNodeID int64  `query:"backend_node_id"`
		FrameID       string `query:"frame_id"`
	}
	huma.Register(api, huma.Operation{OperationID: "element-exists", Method: http.MethodGet, Path: "/api/v1/element/exists", Summary: "Check an element is still in its document", Tags: []string{"Element"}},
		func(ctx context.Context, input *elementExistsInput) (*boolOutput, error) {
			out := &boolOutput{}
			out.Body.OK = svc.CheckElementExists(ctx, cdp.BackendNodeID(input.BackendNodeID), cdp.FrameID(input.FrameID))
			return out, nil
		})

	type offsetOutput struct {
		Body struct {
			Offset *tracker.Offset `json:"offset"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "frame-offset", Method: http.MethodGet, Path: "/api/v1/frame/{frame_id}/offset", Summary: "Iframe offset within the main frame", Tags: []string{"Frame"}},
		func(ctx context.Context, input *frameIDInput) (*offsetOutput, error) {
			out := &offsetOutput{}
			out.Body.Offset = svc.IframeOffsetInMainFrame(ctx, cdp.FrameID(input.FrameID))
			return out, nil
		})
}
