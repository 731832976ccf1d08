// Package cdp drives a Chromium-embedded card-room client over the DevTools
// protocol. Each page target is surfaced as one window: the target title maps
// to the window title, the page URL host to the window class, and the browser
// product name to the process. Geometry commands go through the Browser
// domain, rasters and input through the attached page session.
package cdp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// Config controls how the driver reaches the client.
type Config struct {
	// Kind selects the attach mode: "remote" dials an already-running
	// client's DevTools endpoint, "exec" launches a browser shell.
	Kind      string
	RemoteURL string
	ExecPath  string
	// StartURL is opened after an exec launch so the lobby is on screen.
	StartURL string
	Headless bool
	// DryRun logs pointer actions instead of dispatching them.
	DryRun      bool
	CallTimeout time.Duration
}

const (
	// wheelNotchPx is the pixel delta dispatched per scroll unit.
	wheelNotchPx = 120

	defaultCallTimeout = 10 * time.Second
)

// Driver implements pilot.WindowSystem, pilot.FrameSource and
// pilot.ActionExecutor over one DevTools connection.
type Driver struct {
	cfg    Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	started bool
	process string
	tabs    map[string]*tab
	active  string
}

// tab is one attached page target plus its last known geometry.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	geom   geometry
}

// geometry relates a page viewport to the screen. origin is the content
// top-left in screen coordinates; page is the document scroll offset in CSS
// pixels.
type geometry struct {
	origin image.Point
	width  int
	height int
	pageX  int
	pageY  int
	scale  float64
}

// New builds a driver for the configured attach mode. The connection is not
// dialed until Start.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	switch cfg.Kind {
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote driver needs a devtools url")
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	case "exec":
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unknown driver kind %q", cfg.Kind)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Driver{
		cfg:           cfg,
		logger:        logger,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[string]*tab),
	}, nil
}

// Start dials the browser and verifies the connection. For an exec launch it
// also opens the start URL so a page target exists.
func (d *Driver) Start(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(d.browserCtx, d.cfg.CallTimeout)
	defer cancel()

	if _, err := chromedp.Targets(callCtx); err != nil {
		return fmt.Errorf("dial browser: %w", err)
	}
	if d.cfg.Kind == "exec" && d.cfg.StartURL != "" {
		if err := chromedp.Run(callCtx, chromedp.Navigate(d.cfg.StartURL)); err != nil {
			return fmt.Errorf("open start url: %w", err)
		}
	}

	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	d.logger.Info("devtools connection established",
		zap.String("kind", d.cfg.Kind),
		zap.Bool("dry_run", d.cfg.DryRun))
	return nil
}

// Close detaches every page session and tears down the browser connection.
func (d *Driver) Close() {
	d.mu.Lock()
	d.started = false
	for _, t := range d.tabs {
		t.cancel()
	}
	d.tabs = make(map[string]*tab)
	d.mu.Unlock()

	d.browserCancel()
	d.allocCancel()
}

// Available reports whether Start succeeded and Close has not run.
func (d *Driver) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// EnumerateWindows lists the client's page targets as windows.
func (d *Driver) EnumerateWindows(ctx context.Context) ([]pilot.WindowInfo, error) {
	if !d.Available() {
		return nil, fmt.Errorf("driver not started")
	}
	callCtx, cancel := context.WithTimeout(d.browserCtx, d.cfg.CallTimeout)
	defer cancel()

	targets, err := chromedp.Targets(callCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	windows := make([]pilot.WindowInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		info := pilot.WindowInfo{
			Handle:  string(t.TargetID),
			Title:   t.Title,
			Class:   hostClass(t.URL),
			Process: d.processName(ctx, string(t.TargetID)),
			Visible: true,
			Scale:   1,
		}
		if bounds, berr := d.windowBounds(ctx, info.Handle); berr == nil {
			info.Rect = boundsRect(bounds)
			info.Minimized = bounds.WindowState == browser.WindowStateMinimized
			info.Visible = !info.Minimized
		}
		windows = append(windows, info)
	}
	return windows, nil
}

// ClientRect reports the page content area in screen coordinates.
func (d *Driver) ClientRect(ctx context.Context, handle string) (image.Rectangle, error) {
	geom, err := d.refreshGeometry(ctx, handle)
	if err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(
		geom.origin.X,
		geom.origin.Y,
		geom.origin.X+geom.width,
		geom.origin.Y+geom.height,
	), nil
}

// BringToFront raises the target's window.
func (d *Driver) BringToFront(ctx context.Context, handle string) bool {
	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		return page.BringToFront().Do(callCtx)
	})
	if err != nil {
		d.logger.Debug("bring to front failed", zap.String("handle", handle), zap.Error(err))
		return false
	}
	return true
}

// Restore returns a minimized window to its normal state.
func (d *Driver) Restore(ctx context.Context, handle string) bool {
	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		id, _, err := browser.GetWindowForTarget().Do(callCtx)
		if err != nil {
			return err
		}
		return browser.SetWindowBounds(id, &browser.Bounds{
			WindowState: browser.WindowStateNormal,
		}).Do(callCtx)
	})
	if err != nil {
		d.logger.Debug("restore failed", zap.String("handle", handle), zap.Error(err))
		return false
	}
	return true
}

// Move repositions and resizes the target's window.
func (d *Driver) Move(ctx context.Context, handle string, to image.Rectangle) bool {
	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		id, _, err := browser.GetWindowForTarget().Do(callCtx)
		if err != nil {
			return err
		}
		return browser.SetWindowBounds(id, &browser.Bounds{
			Left:        int64(to.Min.X),
			Top:         int64(to.Min.Y),
			Width:       int64(to.Dx()),
			Height:      int64(to.Dy()),
			WindowState: browser.WindowStateNormal,
		}).Do(callCtx)
	})
	if err != nil {
		d.logger.Debug("move failed", zap.String("handle", handle), zap.Error(err))
		return false
	}
	return true
}

// Capture screenshots the given screen region of the target's page. The
// captured target becomes the active one for subsequent pointer actions.
func (d *Driver) Capture(ctx context.Context, handle string, region image.Rectangle) (image.Image, error) {
	geom, err := d.refreshGeometry(ctx, handle)
	if err != nil {
		return nil, err
	}

	clip := screenToPage(region, geom)
	if clip.Width <= 0 || clip.Height <= 0 {
		return nil, fmt.Errorf("capture region %v is outside the page content", region)
	}

	var shot []byte
	err = d.withTarget(ctx, handle, func(callCtx context.Context) error {
		var serr error
		shot, serr = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&clip).
			Do(callCtx)
		return serr
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	d.mu.Lock()
	d.active = handle
	d.mu.Unlock()
	return img, nil
}

// Click dispatches a left click at the given screen coordinates to the active
// target.
func (d *Driver) Click(ctx context.Context, x, y int) bool {
	handle, geom, ok := d.activeGeometry()
	if !ok {
		d.logger.Warn("click with no active target", zap.Int("x", x), zap.Int("y", y))
		return false
	}
	vx, vy := screenToViewport(x, y, geom)
	if vx < 0 || vy < 0 || vx >= float64(geom.width) || vy >= float64(geom.height) {
		d.logger.Warn("click outside the content area",
			zap.Int("x", x), zap.Int("y", y), zap.String("handle", handle))
		return false
	}
	if d.cfg.DryRun {
		d.logger.Info("dry-run click",
			zap.String("handle", handle),
			zap.Float64("viewport_x", vx),
			zap.Float64("viewport_y", vy))
		return true
	}

	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		return chromedp.MouseClickXY(vx, vy).Do(callCtx)
	})
	if err != nil {
		d.logger.Warn("click dispatch failed", zap.String("handle", handle), zap.Error(err))
		return false
	}
	return true
}

// Scroll dispatches wheel events at the center of the active target.
func (d *Driver) Scroll(ctx context.Context, dir pilot.ScrollDirection, amount int) bool {
	if amount <= 0 {
		return true
	}
	handle, geom, ok := d.activeGeometry()
	if !ok {
		d.logger.Warn("scroll with no active target")
		return false
	}
	delta := float64(amount * wheelNotchPx)
	if dir == pilot.ScrollUp {
		delta = -delta
	}
	cx := float64(geom.width) / 2
	cy := float64(geom.height) / 2
	if d.cfg.DryRun {
		d.logger.Info("dry-run scroll",
			zap.String("handle", handle),
			zap.String("direction", string(dir)),
			zap.Float64("delta", delta))
		return true
	}

	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, cx, cy).
			WithDeltaX(0).
			WithDeltaY(delta).
			Do(callCtx)
	})
	if err != nil {
		d.logger.Warn("scroll dispatch failed", zap.String("handle", handle), zap.Error(err))
		return false
	}
	return true
}

// withTarget runs fn inside the handle's page session under the call timeout.
func (d *Driver) withTarget(ctx context.Context, handle string, fn func(ctx context.Context) error) error {
	if !d.Available() {
		return fmt.Errorf("driver not started")
	}
	t, err := d.tabFor(handle)
	if err != nil {
		return err
	}

	timeout := d.cfg.CallTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	callCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	return chromedp.Run(callCtx, chromedp.ActionFunc(fn))
}

// tabFor attaches to the target once and caches the session.
func (d *Driver) tabFor(handle string) (*tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tabs[handle]; ok {
		return t, nil
	}
	tctx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(target.ID(handle)))
	t := &tab{ctx: tctx, cancel: cancel}
	d.tabs[handle] = t
	return t, nil
}

// refreshGeometry reads the window bounds and layout metrics for the handle
// and caches the result.
func (d *Driver) refreshGeometry(ctx context.Context, handle string) (geometry, error) {
	var geom geometry
	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		_, bounds, err := browser.GetWindowForTarget().Do(callCtx)
		if err != nil {
			return fmt.Errorf("window bounds: %w", err)
		}
		_, _, _, _, cssVisual, _, err := page.GetLayoutMetrics().Do(callCtx)
		if err != nil {
			return fmt.Errorf("layout metrics: %w", err)
		}
		if cssVisual == nil {
			return fmt.Errorf("layout metrics returned no viewport")
		}
		geom = contentGeometry(bounds, cssVisual)
		return nil
	})
	if err != nil {
		return geometry{}, err
	}

	d.mu.Lock()
	if t, ok := d.tabs[handle]; ok {
		t.geom = geom
	}
	d.mu.Unlock()
	return geom, nil
}

// windowBounds reads the OS window bounds for the handle's target.
func (d *Driver) windowBounds(ctx context.Context, handle string) (*browser.Bounds, error) {
	var bounds *browser.Bounds
	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		var berr error
		_, bounds, berr = browser.GetWindowForTarget().Do(callCtx)
		return berr
	})
	if err != nil {
		return nil, err
	}
	if bounds == nil {
		return nil, fmt.Errorf("no bounds for target %s", handle)
	}
	return bounds, nil
}

// processName resolves the browser product string once and caches it.
func (d *Driver) processName(ctx context.Context, handle string) string {
	d.mu.Lock()
	cached := d.process
	d.mu.Unlock()
	if cached != "" {
		return cached
	}

	var product string
	err := d.withTarget(ctx, handle, func(callCtx context.Context) error {
		_, p, _, _, _, err := browser.GetVersion().Do(callCtx)
		product = p
		return err
	})
	if err != nil {
		d.logger.Debug("browser version probe failed", zap.Error(err))
		return ""
	}

	d.mu.Lock()
	d.process = product
	d.mu.Unlock()
	return product
}

func (d *Driver) activeGeometry() (string, geometry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == "" {
		return "", geometry{}, false
	}
	t, ok := d.tabs[d.active]
	if !ok || t.geom.width <= 0 || t.geom.height <= 0 {
		return "", geometry{}, false
	}
	return d.active, t.geom, true
}

// contentGeometry derives the content origin in screen coordinates from the
// OS window bounds and the CSS visual viewport. Side decorations are assumed
// symmetric; the remainder of the vertical difference is title chrome.
func contentGeometry(bounds *browser.Bounds, vp *page.VisualViewport) geometry {
	geom := geometry{
		width:  int(vp.ClientWidth),
		height: int(vp.ClientHeight),
		pageX:  int(vp.PageX),
		pageY:  int(vp.PageY),
		scale:  vp.Scale,
	}
	if geom.scale <= 0 {
		geom.scale = 1
	}
	if bounds == nil {
		return geom
	}
	side := (int(bounds.Width) - geom.width) / 2
	if side < 0 {
		side = 0
	}
	top := int(bounds.Height) - geom.height - side
	if top < 0 {
		top = 0
	}
	geom.origin = image.Point{
		X: int(bounds.Left) + side,
		Y: int(bounds.Top) + top,
	}
	return geom
}

// screenToPage converts a screen-space region into a capture clip in page
// coordinates, honoring the current scroll offset.
func screenToPage(region image.Rectangle, geom geometry) page.Viewport {
	content := image.Rect(
		geom.origin.X,
		geom.origin.Y,
		geom.origin.X+geom.width,
		geom.origin.Y+geom.height,
	)
	clipped := region.Intersect(content)
	if clipped.Empty() {
		return page.Viewport{}
	}
	return page.Viewport{
		X:      float64(clipped.Min.X - geom.origin.X + geom.pageX),
		Y:      float64(clipped.Min.Y - geom.origin.Y + geom.pageY),
		Width:  float64(clipped.Dx()),
		Height: float64(clipped.Dy()),
		Scale:  1,
	}
}

// screenToViewport converts screen coordinates to CSS viewport coordinates.
func screenToViewport(x, y int, geom geometry) (float64, float64) {
	return float64(x - geom.origin.X), float64(y - geom.origin.Y)
}

// boundsRect converts DevTools window bounds to an image rectangle.
func boundsRect(b *browser.Bounds) image.Rectangle {
	if b == nil {
		return image.Rectangle{}
	}
	return image.Rect(
		int(b.Left),
		int(b.Top),
		int(b.Left)+int(b.Width),
		int(b.Top)+int(b.Height),
	)
}

// hostClass derives a window-class analogue from the page URL.
func hostClass(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
