package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/chromedp"
)

// TargetInfo identifies one inspectable page target.
type TargetInfo struct {
	ID  string
	URL string
}

// FindInspectedTarget enumerates the browser's page targets and returns the
// first one whose URL contains urlFilter (case-insensitive). An empty filter
// matches any page. Enumeration uses a short-lived chromedp context; the
// actual debugging session is attached separately over the raw transport.
func FindInspectedTarget(ctx context.Context, cdpURL, urlFilter string) (TargetInfo, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx); err != nil {
		return TargetInfo{}, fmt.Errorf("connect to browser at %s: %w", cdpURL, err)
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return TargetInfo{}, fmt.Errorf("enumerate targets: %w", err)
	}
	slog.Info("found browser targets", "count", len(targets))

	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if urlFilter != "" && !strings.Contains(strings.ToLower(t.URL), strings.ToLower(urlFilter)) {
			slog.Debug("skipping tab (url filter)", "url", t.URL)
			continue
		}
		return TargetInfo{ID: string(t.TargetID), URL: t.URL}, nil
	}
	return TargetInfo{}, fmt.Errorf("no page target matching filter %q", urlFilter)
}
