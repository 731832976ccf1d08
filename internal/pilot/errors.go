package pilot

import "errors"

// Sentinel errors shared across the pilot subsystems. Leaf components return
// empty values for "not found"/"no match"; these errors mark genuinely broken
// inputs or unavailable collaborators.
var (
	// ErrCaptureUnavailable means the frame source returned no raster.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrRecognitionUnavailable means no text recognizer is usable.
	ErrRecognitionUnavailable = errors.New("text recognition unavailable")
	// ErrNotLobbyScreen means an optical fetch ran against a non-lobby frame.
	ErrNotLobbyScreen = errors.New("frame is not a lobby screen")
	// ErrSourceUnavailable means a configured entry source cannot serve.
	ErrSourceUnavailable = errors.New("entry source unavailable")
	// ErrNoWindow means the target window could not be resolved.
	ErrNoWindow = errors.New("target window not found")
	// ErrNoSnapshot means the snapshot store holds no lobby observation yet.
	ErrNoSnapshot = errors.New("no lobby snapshot recorded")
	// ErrQueueFull means the seat queue rejected a request at capacity.
	ErrQueueFull = errors.New("seat queue full")
	// ErrQueueClosed means the seat queue is shut down.
	ErrQueueClosed = errors.New("seat queue closed")
)
