package pilot

import (
	"context"
	"image"
	"time"
)

// WindowSystem enumerates and manipulates OS-level windows. Implementations
// report capability via Available so callers can branch instead of failing at
// call time.
type WindowSystem interface {
	Available() bool
	EnumerateWindows(ctx context.Context) ([]WindowInfo, error)
	ClientRect(ctx context.Context, handle string) (image.Rectangle, error)
	BringToFront(ctx context.Context, handle string) bool
	Restore(ctx context.Context, handle string) bool
	Move(ctx context.Context, handle string, to image.Rectangle) bool
}

// FrameSource captures a raster of a window region.
type FrameSource interface {
	Capture(ctx context.Context, handle string, region image.Rectangle) (image.Image, error)
}

// TextRecognizer turns rasters into text. Recognize returns an empty string
// when nothing is readable; errors are reserved for an unusable engine.
type TextRecognizer interface {
	Available() bool
	Recognize(ctx context.Context, img image.Image, mode RecognizeMode) (string, error)
	RecognizeWords(ctx context.Context, img image.Image) ([]WordBox, error)
}

// ActionExecutor injects pointer input. Implementations honor a dry-run mode
// that logs the intended action and reports success without touching the OS.
type ActionExecutor interface {
	Click(ctx context.Context, x, y int) bool
	Scroll(ctx context.Context, dir ScrollDirection, amount int) bool
}

// StructuredSource performs one request against a lobby backend.
type StructuredSource interface {
	Available() bool
	Request(ctx context.Context, ep Endpoint, proxyURL string, params map[string]string) (SourceResponse, error)
}

// EntrySource is one channel the scheduler can pull lobby entries from.
type EntrySource interface {
	Kind() FetchStrategy
	Available() bool
	Entries(ctx context.Context, params map[string]string) ([]TableEntry, error)
}

// RateGate grants fetch tokens under a budget. Acquire blocks up to timeout
// and reports whether a token was obtained; a timed-out acquire consumes
// nothing.
type RateGate interface {
	Acquire(ctx context.Context, timeout time.Duration) bool
}

// ProxyPicker selects an upstream proxy endpoint and records its health.
type ProxyPicker interface {
	Pick() (string, bool)
	ReportSuccess(endpoint string)
	ReportFailure(endpoint string)
}

// DelayPolicy computes the wait before the next retry attempt. Failure
// reports escalate the delay, success reports relax it.
type DelayPolicy interface {
	Next() time.Duration
	ReportSuccess()
	ReportFailure()
}

// SnapshotStore persists lobby snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LatestSnapshot(ctx context.Context) (Snapshot, error)
}

// SessionStore persists seat jobs and their results.
type SessionStore interface {
	CreateSeatJob(ctx context.Context, job SeatJob) error
	UpdateSeatJob(ctx context.Context, jobID string, status JobStatus, errText string, result *SeatResult) error
	GetSeatJob(ctx context.Context, jobID string) (SeatJob, error)
}

// BlobStore writes raw artifacts (archived frames) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes lobby and seat events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SeatQueue provides enqueue/dequeue semantics for seat requests.
type SeatQueue interface {
	Enqueue(ctx context.Context, req SeatRequest) error
	Dequeue(ctx context.Context) (SeatRequest, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and snapshot IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}
