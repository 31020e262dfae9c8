package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/chromedp/cdproto/cdp"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/inspect_agent/internal/tracker"
)

// Service is the tracker surface the control API exposes to the shell.
// Implemented by *tracker.Tracker.
type Service interface {
	SetContextSelection(active bool)
	UpdateMousePosition(x, y float64)
	ClearMousePosition()
	CurrentlyHoveredElementID() string
	CollectHoveredElementInfo(ctx context.Context) (*tracker.SelectedElement, error)
	UpdateHighlights(ctx context.Context, elements []tracker.SelectedElement, scopeID string)
	ScrollToElement(ctx context.Context, nodeID cdp.BackendNodeID, frameID cdp.FrameID) bool
	CheckFrameValidity(frameID cdp.FrameID, expectedLocation string) bool
	CheckElementExists(ctx context.Context, nodeID cdp.BackendNodeID, frameID cdp.FrameID) bool
	IframeOffsetInMainFrame(ctx context.Context, frameID cdp.FrameID) *tracker.Offset
	Status() tracker.Status
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Element Inspector API", "1.0.0")
	api := humachi.New(router, cfg)

	registerInspectHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeFrameNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeStaleContext, cdpcontrol.CodeNodeUnresolvable:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeNotReady, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
