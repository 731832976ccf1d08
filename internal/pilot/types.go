// Package pilot defines core types shared across subsystems.
package pilot

import (
	"image"
	"time"
)

// Screen is the coarse classification of what the client window shows.
type Screen string

// Screen values returned by the classifier.
const (
	ScreenLobby   Screen = "lobby"
	ScreenTable   Screen = "table"
	ScreenLogin   Screen = "login"
	ScreenPopup   Screen = "popup"
	ScreenUnknown Screen = "unknown"
)

// MatchMethod records which criterion matched a window candidate.
type MatchMethod string

// Match methods in descending specificity.
const (
	MatchTitleExact     MatchMethod = "title_exact"
	MatchTitleSubstring MatchMethod = "title_substring"
	MatchTitleRegex     MatchMethod = "title_regex"
	MatchClassExact     MatchMethod = "class_exact"
	MatchClassPartial   MatchMethod = "class_partial"
	MatchProcess        MatchMethod = "process"
)

// WindowInfo is the raw window description returned by a WindowSystem.
type WindowInfo struct {
	Handle    string          `json:"handle"`
	Title     string          `json:"title"`
	Class     string          `json:"class"`
	Process   string          `json:"process"`
	PID       int             `json:"pid"`
	Rect      image.Rectangle `json:"rect"`
	Visible   bool            `json:"visible"`
	Minimized bool            `json:"minimized"`
	Scale     float64         `json:"scale"`
}

// WindowCandidate is one window scored against a WindowQuery. Candidates are
// produced fresh per enumeration and never mutated afterwards.
type WindowCandidate struct {
	WindowInfo
	Interior image.Rectangle `json:"interior"`
	Method   MatchMethod     `json:"method"`
	Score    float64         `json:"score"`
}

// WindowQuery describes the window the pilot should attach to. Title is tried
// exact, then substring, then as a regular expression.
type WindowQuery struct {
	Title     string `json:"title" mapstructure:"title"`
	Class     string `json:"class" mapstructure:"class"`
	Process   string `json:"process" mapstructure:"process"`
	MinWidth  int    `json:"min_width" mapstructure:"min_width"`
	MinHeight int    `json:"min_height" mapstructure:"min_height"`
}

// RecognizeMode selects the recognizer's segmentation behavior.
type RecognizeMode string

// Recognition modes.
const (
	RecognizeFull       RecognizeMode = "full"
	RecognizeSingleLine RecognizeMode = "single_line"
)

// WordBox is one recognized word with its bounding box in frame coordinates.
type WordBox struct {
	Word string          `json:"word"`
	Box  image.Rectangle `json:"box"`
}

// ScrollDirection names the axis sign for scroll actions.
type ScrollDirection string

// Scroll directions.
const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// SourceTag records which channel produced a table entry.
type SourceTag string

// Entry sources.
const (
	SourceStructured SourceTag = "structured"
	SourceOptical    SourceTag = "optical"
)

// TableEntry is one selectable row of the lobby list. Players never exceeds
// Seats when Seats is known; unknown capacity is filled from configuration.
// RowTop/RowBottom carry the row's pixel span for optical entries so the
// navigator can click it; both are zero for structured entries.
type TableEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Game         string    `json:"game"`
	Stakes       string    `json:"stakes"`
	Players      int       `json:"players"`
	Seats        int       `json:"seats"`
	AvgPot       float64   `json:"avg_pot"`
	HandsPerHour float64   `json:"hands_per_hour"`
	Waitlist     int       `json:"waitlist"`
	Source       SourceTag `json:"source"`
	RowTop       int       `json:"row_top,omitempty"`
	RowBottom    int       `json:"row_bottom,omitempty"`
}

// TableFilter selects the first acceptable lobby entry. Zero values disable a
// predicate.
type TableFilter struct {
	Game       string `json:"game" mapstructure:"game"`
	MinPlayers int    `json:"min_players" mapstructure:"min_players"`
	MaxPlayers int    `json:"max_players" mapstructure:"max_players"`
	MaxSeats   int    `json:"max_seats" mapstructure:"max_seats"`
}

// FetchStrategy names the channel that produced a fetch result.
type FetchStrategy string

// Fetch strategies.
const (
	StrategyStructured FetchStrategy = "structured"
	StrategyOptical    FetchStrategy = "optical"
	StrategyNone       FetchStrategy = "none"
)

// StrategyOrder controls which channels the scheduler tries, and in what order.
type StrategyOrder string

// Strategy orders accepted by the scheduler.
const (
	OrderStructuredFirst StrategyOrder = "structured_first"
	OrderOpticalFirst    StrategyOrder = "optical_first"
	OrderStructuredOnly  StrategyOrder = "structured_only"
	OrderOpticalOnly     StrategyOrder = "optical_only"
)

// FetchResult is the aggregate outcome of one scheduler fetch. When FromCache
// is set, Elapsed still reflects the fetch that originally produced the data.
type FetchResult struct {
	Entries   []TableEntry  `json:"entries"`
	Strategy  FetchStrategy `json:"strategy"`
	FromCache bool          `json:"from_cache"`
	Elapsed   time.Duration `json:"elapsed"`
	Errors    []string      `json:"errors,omitempty"`
}

// SessionState is the terminal state of a seating session.
type SessionState string

// Session states.
const (
	SessionAtLobby  SessionState = "at_lobby"
	SessionSeated   SessionState = "seated"
	SessionBlocked  SessionState = "blocked"
	SessionTimedOut SessionState = "timed_out"
	SessionNoMatch  SessionState = "no_match"
)

// SeatResult is the structured outcome of a Navigator run.
type SeatResult struct {
	State    SessionState  `json:"state"`
	Table    *TableEntry   `json:"table,omitempty"`
	Message  string        `json:"message"`
	Elapsed  time.Duration `json:"elapsed"`
	Attempts int           `json:"attempts"`
}

// JobStatus represents the lifecycle state of a seat job.
type JobStatus string

// Job status values persisted in the session store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// SeatJob is the metadata persisted for each submitted seat request.
type SeatJob struct {
	ID             string      `json:"id"`
	Status         JobStatus   `json:"status"`
	Submitted      time.Time   `json:"submitted_at"`
	Started        *time.Time  `json:"started_at,omitempty"`
	Finished       *time.Time  `json:"finished_at,omitempty"`
	ErrorText      string      `json:"error_text,omitempty"`
	Filter         TableFilter `json:"filter"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	Result         *SeatResult `json:"result,omitempty"`
}

// SeatRequest wraps a seat job ready to run.
type SeatRequest struct {
	JobID     string
	Filter    TableFilter
	Timeout   time.Duration
	Attempt   int
	Submitted int64
}

// Snapshot is one persisted lobby observation produced by the poller.
type Snapshot struct {
	ID       string        `json:"id"`
	TakenAt  time.Time     `json:"taken_at"`
	Strategy FetchStrategy `json:"strategy"`
	Hash     string        `json:"hash"`
	Elapsed  time.Duration `json:"elapsed"`
	Entries  []TableEntry  `json:"entries"`
}

// AuthKind selects how structured requests authenticate.
type AuthKind string

// Supported auth kinds.
const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthHMAC   AuthKind = "hmac"
)

// EndpointAuth carries the credentials for one backend endpoint.
type EndpointAuth struct {
	Kind     AuthKind `json:"kind" mapstructure:"kind"`
	Token    string   `json:"-" mapstructure:"token"`
	Username string   `json:"username,omitempty" mapstructure:"username"`
	Password string   `json:"-" mapstructure:"password"`
	Secret   string   `json:"-" mapstructure:"secret"`
	KeyID    string   `json:"key_id,omitempty" mapstructure:"key_id"`
}

// BodyFormat tells the mapper how to interpret a structured response body.
type BodyFormat string

// Body formats.
const (
	FormatJSON BodyFormat = "json"
	FormatHTML BodyFormat = "html"
)

// Endpoint describes one structured lobby backend.
type Endpoint struct {
	Name           string            `json:"name" mapstructure:"name"`
	BaseURL        string            `json:"base_url" mapstructure:"base_url"`
	Path           string            `json:"path" mapstructure:"path"`
	Method         string            `json:"method" mapstructure:"method"`
	Format         BodyFormat        `json:"format" mapstructure:"format"`
	RowSelector    string            `json:"row_selector" mapstructure:"row_selector"`
	Auth           EndpointAuth      `json:"auth" mapstructure:"auth"`
	Params         map[string]string `json:"params" mapstructure:"params"`
	TimeoutSeconds int               `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// SourceResponse is the raw reply of a StructuredSource request. Non-2xx
// statuses are carried here, not converted to errors; only transport failures
// surface as errors.
type SourceResponse struct {
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}
