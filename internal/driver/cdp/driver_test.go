package cdp

import (
	"context"
	"image"
	"testing"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Kind: "teleport"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := New(Config{Kind: "remote"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for remote kind without url")
	}

	d, err := New(Config{Kind: "remote", RemoteURL: "http://127.0.0.1:9222"}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()
	if d.Available() {
		t.Fatal("driver should not be available before Start")
	}
	if d.cfg.CallTimeout != defaultCallTimeout {
		t.Fatalf("expected default call timeout, got %v", d.cfg.CallTimeout)
	}
}

func TestContentGeometry(t *testing.T) {
	t.Parallel()

	bounds := &browser.Bounds{Left: 100, Top: 50, Width: 816, Height: 639}
	vp := &page.VisualViewport{ClientWidth: 800, ClientHeight: 600, PageX: 0, PageY: 0, Scale: 1}

	geom := contentGeometry(bounds, vp)
	// 16px horizontal decoration splits 8/8; the remaining 31px is title chrome.
	if geom.origin.X != 108 || geom.origin.Y != 81 {
		t.Fatalf("unexpected content origin: %+v", geom.origin)
	}
	if geom.width != 800 || geom.height != 600 {
		t.Fatalf("unexpected content size: %dx%d", geom.width, geom.height)
	}
	if geom.scale != 1 {
		t.Fatalf("expected scale 1, got %v", geom.scale)
	}

	geom = contentGeometry(nil, vp)
	if geom.origin != (image.Point{}) || geom.width != 800 {
		t.Fatalf("expected zero origin without bounds, got %+v", geom)
	}
}

func TestScreenToPageClipsToContent(t *testing.T) {
	t.Parallel()

	geom := geometry{
		origin: image.Point{X: 108, Y: 81},
		width:  800,
		height: 600,
		pageX:  0,
		pageY:  40,
		scale:  1,
	}

	clip := screenToPage(image.Rect(108, 81, 908, 681), geom)
	if clip.X != 0 || clip.Y != 40 || clip.Width != 800 || clip.Height != 600 {
		t.Fatalf("unexpected full-content clip: %+v", clip)
	}

	// A region hanging past the right edge is clipped to the content.
	clip = screenToPage(image.Rect(508, 181, 1100, 381), geom)
	if clip.X != 400 || clip.Y != 140 || clip.Width != 400 || clip.Height != 200 {
		t.Fatalf("unexpected clipped region: %+v", clip)
	}

	clip = screenToPage(image.Rect(2000, 2000, 2100, 2100), geom)
	if clip.Width != 0 || clip.Height != 0 {
		t.Fatalf("expected empty clip for disjoint region, got %+v", clip)
	}
}

func TestScreenToViewport(t *testing.T) {
	t.Parallel()

	geom := geometry{origin: image.Point{X: 108, Y: 81}, width: 800, height: 600}
	x, y := screenToViewport(508, 381, geom)
	if x != 400 || y != 300 {
		t.Fatalf("unexpected viewport point: %v,%v", x, y)
	}
}

func TestBoundsRectAndHostClass(t *testing.T) {
	t.Parallel()

	rect := boundsRect(&browser.Bounds{Left: 10, Top: 20, Width: 300, Height: 200})
	if rect != image.Rect(10, 20, 310, 220) {
		t.Fatalf("unexpected rect: %v", rect)
	}
	if !boundsRect(nil).Empty() {
		t.Fatal("expected empty rect for nil bounds")
	}

	if got := hostClass("https://client.cardroom.example:8443/lobby"); got != "client.cardroom.example:8443" {
		t.Fatalf("unexpected host class: %q", got)
	}
	if got := hostClass("not a url"); got != "not a url" {
		t.Fatalf("expected raw value fallback, got %q", got)
	}
}

func TestDryRunPointerActions(t *testing.T) {
	t.Parallel()

	d := &Driver{
		cfg:    Config{DryRun: true},
		logger: zap.NewNop(),
		tabs: map[string]*tab{
			"t1": {geom: geometry{origin: image.Point{X: 100, Y: 50}, width: 800, height: 600, scale: 1}},
		},
		active:  "t1",
		started: true,
	}

	if !d.Click(context.Background(), 500, 350) {
		t.Fatal("expected dry-run click to succeed")
	}
	if d.Click(context.Background(), 5000, 350) {
		t.Fatal("expected click outside the content area to fail")
	}
	if !d.Scroll(context.Background(), pilot.ScrollDown, 3) {
		t.Fatal("expected dry-run scroll to succeed")
	}
	if !d.Scroll(context.Background(), pilot.ScrollUp, 0) {
		t.Fatal("expected zero-amount scroll to be a no-op success")
	}

	d.active = ""
	if d.Click(context.Background(), 500, 350) {
		t.Fatal("expected click with no active target to fail")
	}
}
