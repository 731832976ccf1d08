package pilot

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

// fakeWindowSystem serves a scripted window list. appearAfter delays the
// windows by that many enumeration calls so WaitFor polling can be exercised.
type fakeWindowSystem struct {
	available    bool
	windows      []WindowInfo
	clientRects  map[string]image.Rectangle
	enumerateErr error
	appearAfter  int

	mu       sync.Mutex
	enums    int
	restored []string
	fronted  []string
}

func (f *fakeWindowSystem) Available() bool { return f.available }

func (f *fakeWindowSystem) EnumerateWindows(context.Context) ([]WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enums++
	if f.enumerateErr != nil {
		return nil, f.enumerateErr
	}
	if f.enums <= f.appearAfter {
		return nil, nil
	}
	return f.windows, nil
}

func (f *fakeWindowSystem) ClientRect(_ context.Context, handle string) (image.Rectangle, error) {
	if rect, ok := f.clientRects[handle]; ok {
		return rect, nil
	}
	return image.Rectangle{}, errors.New("client rect unavailable")
}

func (f *fakeWindowSystem) BringToFront(_ context.Context, handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fronted = append(f.fronted, handle)
	return true
}

func (f *fakeWindowSystem) Restore(_ context.Context, handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, handle)
	return true
}

func (f *fakeWindowSystem) Move(context.Context, string, image.Rectangle) bool { return true }

// fakeFrameSource returns one frame per Capture call, sticking to the last
// frame once the script runs out.
type fakeFrameSource struct {
	frames []image.Image
	err    error

	mu    sync.Mutex
	calls int
}

func (f *fakeFrameSource) Capture(context.Context, string, image.Rectangle) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.frames) == 0 {
		return nil, nil
	}
	idx := f.calls - 1
	if idx >= len(f.frames) {
		idx = len(f.frames) - 1
	}
	return f.frames[idx], nil
}

// fakeRecognizer scripts recognition per mode: full-frame reads pop from
// fullTexts, row reads pop from rowTexts and word-box reads pop from words.
// Exhausted queues repeat their last element.
type fakeRecognizer struct {
	available bool
	fullTexts []string
	rowTexts  []string
	words     [][]WordBox
	err       error

	mu      sync.Mutex
	fullIdx int
	rowIdx  int
	wordIdx int
}

func (f *fakeRecognizer) Available() bool { return f.available }

func (f *fakeRecognizer) Recognize(_ context.Context, _ image.Image, mode RecognizeMode) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if mode == RecognizeSingleLine {
		return popString(f.rowTexts, &f.rowIdx), nil
	}
	return popString(f.fullTexts, &f.fullIdx), nil
}

func (f *fakeRecognizer) RecognizeWords(context.Context, image.Image) ([]WordBox, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.words) == 0 {
		return nil, nil
	}
	idx := f.wordIdx
	if idx >= len(f.words) {
		idx = len(f.words) - 1
	}
	f.wordIdx++
	return f.words[idx], nil
}

func popString(queue []string, idx *int) string {
	if len(queue) == 0 {
		return ""
	}
	i := *idx
	if i >= len(queue) {
		i = len(queue) - 1
	}
	*idx++
	return queue[i]
}

// fakeActions records issued input.
type fakeActions struct {
	clickOK  bool
	scrollOK bool

	mu      sync.Mutex
	clicks  []image.Point
	scrolls int
}

func (f *fakeActions) Click(_ context.Context, x, y int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, image.Point{X: x, Y: y})
	return f.clickOK
}

func (f *fakeActions) Scroll(context.Context, ScrollDirection, int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return f.scrollOK
}

func (f *fakeActions) clickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clicks)
}

// fakeStructuredSource scripts one response (or error) per request.
type fakeStructuredSource struct {
	available bool
	responses []SourceResponse
	errs      []error

	mu      sync.Mutex
	calls   int
	proxies []string
	params  []map[string]string
}

func (f *fakeStructuredSource) Available() bool { return f.available }

func (f *fakeStructuredSource) Request(_ context.Context, _ Endpoint, proxyURL string, params map[string]string) (SourceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.proxies = append(f.proxies, proxyURL)
	f.params = append(f.params, params)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return SourceResponse{}, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return SourceResponse{}, errors.New("no scripted response")
}

// fakeEntrySource scripts scheduler strategies.
type fakeEntrySource struct {
	kind      FetchStrategy
	available bool
	entries   []TableEntry
	err       error

	mu    sync.Mutex
	calls int
}

func (f *fakeEntrySource) Kind() FetchStrategy { return f.kind }
func (f *fakeEntrySource) Available() bool     { return f.available }

func (f *fakeEntrySource) Entries(context.Context, map[string]string) ([]TableEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeEntrySource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeGate answers Acquire with a fixed verdict.
type fakeGate struct {
	allow bool

	mu    sync.Mutex
	calls int
}

func (f *fakeGate) Acquire(context.Context, time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.allow
}

// fakeProxyPicker hands out one endpoint and records health reports.
type fakeProxyPicker struct {
	endpoint string

	mu        sync.Mutex
	successes []string
	failures  []string
}

func (f *fakeProxyPicker) Pick() (string, bool) { return f.endpoint, f.endpoint != "" }

func (f *fakeProxyPicker) ReportSuccess(endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, endpoint)
}

func (f *fakeProxyPicker) ReportFailure(endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, endpoint)
}

// fakeDelayPolicy waits nothing and counts reports.
type fakeDelayPolicy struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (f *fakeDelayPolicy) Next() time.Duration { return 0 }

func (f *fakeDelayPolicy) ReportSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
}

func (f *fakeDelayPolicy) ReportFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
}

// fakeBlobStore keeps written objects in memory.
type fakeBlobStore struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeBlobStore) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return "mem://" + path, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// bandedFrame draws a white frame with dark horizontal bands spanning
// [top, bottom) pixel rows, the shape the row segmenter looks for.
func bandedFrame(width, height int, bands ...[2]int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	dark := color.NRGBA{R: 20, G: 20, B: 20, A: 255}
	for y := 0; y < height; y++ {
		c := white
		for _, b := range bands {
			if y >= b[0] && y < b[1] {
				c = dark
				break
			}
		}
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
