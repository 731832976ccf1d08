// Package config loads and validates tablepilot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Window     WindowConfig     `mapstructure:"window"`
	Screen     ScreenConfig     `mapstructure:"screen"`
	Parser     ParserConfig     `mapstructure:"parser"`
	Limiter    LimiterConfig    `mapstructure:"limiter"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Backoff    BackoffConfig    `mapstructure:"backoff"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Endpoint   pilot.Endpoint   `mapstructure:"endpoint"`
	Navigator  NavigatorConfig  `mapstructure:"navigator"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Driver     DriverConfig     `mapstructure:"driver"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Seats      SeatsConfig      `mapstructure:"seats"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the mode's default level ("debug", "info", "warn",
	// "error"). Empty keeps zap's default for the selected mode.
	Level string `mapstructure:"level"`
}

// WindowConfig describes the client window to attach to and how to score
// candidates.
type WindowConfig struct {
	Query          pilot.WindowQuery `mapstructure:"query"`
	MinWidth       int               `mapstructure:"min_width"`
	MinHeight      int               `mapstructure:"min_height"`
	BorderSide     int               `mapstructure:"border_side"`
	BorderTop      int               `mapstructure:"border_top"`
	Scores         pilot.ScorePolicy `mapstructure:"scores"`
	WaitSeconds    int               `mapstructure:"wait_seconds"`
	PollIntervalMs int               `mapstructure:"poll_interval_ms"`
}

// ScreenConfig overrides the classifier keyword sets. Empty lists keep the
// stock keywords.
type ScreenConfig struct {
	LobbyKeywords []string `mapstructure:"lobby_keywords"`
	TableKeywords []string `mapstructure:"table_keywords"`
	LoginKeywords []string `mapstructure:"login_keywords"`
	PopupKeywords []string `mapstructure:"popup_keywords"`
}

// ParserConfig tunes optical row segmentation.
type ParserConfig struct {
	RowMinHeight int      `mapstructure:"row_min_height"`
	RowMaxHeight int      `mapstructure:"row_max_height"`
	Threshold    float64  `mapstructure:"threshold"`
	RowPadding   int      `mapstructure:"row_padding"`
	DefaultSeats int      `mapstructure:"default_seats"`
	SeatCeiling  int      `mapstructure:"seat_ceiling"`
	GameKeywords []string `mapstructure:"game_keywords"`
}

// LimiterConfig governs the fetch token bucket.
type LimiterConfig struct {
	TokensPerSecond float64 `mapstructure:"tokens_per_second"`
	Capacity        int     `mapstructure:"capacity"`
	PollIntervalMs  int     `mapstructure:"poll_interval_ms"`
}

// ProxyConfig configures upstream proxy rotation.
type ProxyConfig struct {
	Endpoints         []string `mapstructure:"endpoints"`
	Mode              string   `mapstructure:"mode"`
	FailureThreshold  int      `mapstructure:"failure_threshold"`
	DisableForSeconds int      `mapstructure:"disable_for_seconds"`
}

// BackoffConfig configures the retry delay controller.
type BackoffConfig struct {
	Mode   string  `mapstructure:"mode"`
	BaseMs int     `mapstructure:"base_ms"`
	MinMs  int     `mapstructure:"min_ms"`
	MaxMs  int     `mapstructure:"max_ms"`
	Factor float64 `mapstructure:"factor"`
}

// SchedulerConfig governs fetch caching and strategy order.
type SchedulerConfig struct {
	CacheTTLSeconds       int    `mapstructure:"cache_ttl_seconds"`
	AcquireTimeoutSeconds int    `mapstructure:"acquire_timeout_seconds"`
	Order                 string `mapstructure:"order"`
	Retries               int    `mapstructure:"retries"`
}

// NavigatorConfig bounds the seating loop.
type NavigatorConfig struct {
	LoopPauseMs           int      `mapstructure:"loop_pause_ms"`
	SettlePauseMs         int      `mapstructure:"settle_pause_ms"`
	DefaultTimeoutSeconds int      `mapstructure:"default_timeout_seconds"`
	MaxScrolls            int      `mapstructure:"max_scrolls"`
	ScrollAmount          int      `mapstructure:"scroll_amount"`
	DismissKeywords       []string `mapstructure:"dismiss_keywords"`
	ConfirmKeywords       []string `mapstructure:"confirm_keywords"`
	ArchiveFrames         bool     `mapstructure:"archive_frames"`
}

// PollerConfig drives the background lobby snapshot loop.
type PollerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// DriverConfig selects how the pilot reaches the client window. "remote"
// attaches to an already-running Chromium-embedded client over DevTools;
// "exec" launches a browser shell (development profile); "none" disables the
// optical channel.
type DriverConfig struct {
	Kind              string `mapstructure:"kind"`
	RemoteURL         string `mapstructure:"remote_url"`
	ExecPath          string `mapstructure:"exec_path"`
	StartURL          string `mapstructure:"start_url"`
	Headless          bool   `mapstructure:"headless"`
	DryRun            bool   `mapstructure:"dry_run"`
	CallTimeoutSecond int    `mapstructure:"call_timeout_seconds"`
}

// RecognizerConfig locates the external OCR engine.
type RecognizerConfig struct {
	Binary         string `mapstructure:"binary"`
	Languages      string `mapstructure:"languages"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SeatsConfig sizes the seat-request pipeline.
type SeatsConfig struct {
	Workers               int `mapstructure:"workers"`
	QueueDepth            int `mapstructure:"queue_depth"`
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`
}

// StorageConfig selects snapshot, session and frame-archive backends.
type StorageConfig struct {
	SnapshotBackend string `mapstructure:"snapshot_backend"`
	SessionBackend  string `mapstructure:"session_backend"`
	BlobBackend     string `mapstructure:"blob_backend"`
	LocalDir        string `mapstructure:"local_dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	JobsTable       string `mapstructure:"jobs_table"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	LifetimeSeconds int    `mapstructure:"lifetime_seconds"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ProjectID  string `mapstructure:"project_id"`
	LobbyTopic string `mapstructure:"lobby_topic"`
	SeatTopic  string `mapstructure:"seat_topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TABLEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	// Empty-string defaults register the keys with viper so they are
	// settable from the environment alone.
	v.SetDefault("window.query.title", "")
	v.SetDefault("window.query.class", "")
	v.SetDefault("window.query.process", "")
	v.SetDefault("endpoint.base_url", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("window.min_width", 200)
	v.SetDefault("window.min_height", 150)
	v.SetDefault("window.border_side", 8)
	v.SetDefault("window.border_top", 31)
	v.SetDefault("window.wait_seconds", 10)
	v.SetDefault("window.poll_interval_ms", 250)
	v.SetDefault("window.scores.title_exact", 1.0)
	v.SetDefault("window.scores.title_substring", 0.8)
	v.SetDefault("window.scores.title_regex", 0.6)
	v.SetDefault("window.scores.class_exact", 0.9)
	v.SetDefault("window.scores.class_partial", 0.7)
	v.SetDefault("window.scores.process", 0.85)
	v.SetDefault("parser.row_min_height", 12)
	v.SetDefault("parser.row_max_height", 80)
	v.SetDefault("parser.threshold", 8.0)
	v.SetDefault("parser.default_seats", 9)
	v.SetDefault("parser.seat_ceiling", 10)
	v.SetDefault("limiter.tokens_per_second", 1.0)
	v.SetDefault("limiter.capacity", 3)
	v.SetDefault("limiter.poll_interval_ms", 50)
	v.SetDefault("proxy.mode", "round_robin")
	v.SetDefault("proxy.failure_threshold", 3)
	v.SetDefault("proxy.disable_for_seconds", 30)
	v.SetDefault("backoff.mode", "exponential")
	v.SetDefault("backoff.base_ms", 250)
	v.SetDefault("backoff.max_ms", 5000)
	v.SetDefault("backoff.factor", 2.0)
	v.SetDefault("scheduler.cache_ttl_seconds", 5)
	v.SetDefault("scheduler.acquire_timeout_seconds", 2)
	v.SetDefault("scheduler.order", "structured_first")
	v.SetDefault("scheduler.retries", 2)
	v.SetDefault("endpoint.method", "GET")
	v.SetDefault("endpoint.format", "json")
	v.SetDefault("endpoint.timeout_seconds", 15)
	v.SetDefault("navigator.loop_pause_ms", 500)
	v.SetDefault("navigator.settle_pause_ms", 750)
	v.SetDefault("navigator.default_timeout_seconds", 60)
	v.SetDefault("navigator.max_scrolls", 10)
	v.SetDefault("navigator.scroll_amount", 3)
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval_seconds", 30)
	v.SetDefault("driver.kind", "remote")
	v.SetDefault("driver.remote_url", "http://127.0.0.1:9222")
	v.SetDefault("driver.call_timeout_seconds", 10)
	v.SetDefault("recognizer.binary", "tesseract")
	v.SetDefault("recognizer.languages", "eng")
	v.SetDefault("recognizer.timeout_seconds", 20)
	v.SetDefault("seats.workers", 1)
	v.SetDefault("seats.queue_depth", 16)
	v.SetDefault("seats.default_timeout_seconds", 60)
	v.SetDefault("storage.snapshot_backend", "memory")
	v.SetDefault("storage.session_backend", "memory")
	v.SetDefault("storage.blob_backend", "memory")
	v.SetDefault("storage.prefix", "frames")
	v.SetDefault("db.table", "lobby_snapshots")
	v.SetDefault("db.jobs_table", "seat_jobs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.lifetime_seconds", 1800)
	v.SetDefault("pubsub.lobby_topic", "lobby-events")
	v.SetDefault("pubsub.seat_topic", "seat-events")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Window.Query.Title == "" && c.Window.Query.Class == "" && c.Window.Query.Process == "" {
		return fmt.Errorf("window.query needs at least one of title, class or process")
	}
	if c.Limiter.Capacity <= 0 {
		return fmt.Errorf("limiter.capacity must be > 0")
	}
	if c.Seats.Workers <= 0 {
		return fmt.Errorf("seats.workers must be > 0")
	}
	if c.Seats.QueueDepth <= 0 {
		return fmt.Errorf("seats.queue_depth must be > 0")
	}
	switch c.Scheduler.Order {
	case "structured_first", "optical_first", "structured_only", "optical_only":
	default:
		return fmt.Errorf("scheduler.order %q is not a known strategy order", c.Scheduler.Order)
	}
	switch c.Driver.Kind {
	case "remote", "exec", "none":
	default:
		return fmt.Errorf("driver.kind %q must be remote, exec or none", c.Driver.Kind)
	}
	if c.Driver.Kind == "remote" && c.Driver.RemoteURL == "" {
		return fmt.Errorf("driver.remote_url must be set for the remote driver")
	}
	switch c.Storage.SnapshotBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage.snapshot_backend %q must be memory or postgres", c.Storage.SnapshotBackend)
	}
	if c.Storage.SnapshotBackend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set for the postgres snapshot backend")
	}
	switch c.Storage.SessionBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage.session_backend %q must be memory or postgres", c.Storage.SessionBackend)
	}
	if c.Storage.SessionBackend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set for the postgres session backend")
	}
	switch c.Storage.BlobBackend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.blob_backend %q must be memory, local or gcs", c.Storage.BlobBackend)
	}
	if c.Storage.BlobBackend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local blob backend")
	}
	if c.Storage.BlobBackend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs blob backend")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// WindowWait converts the window wait config into durations.
func (c Config) WindowWait() (timeout, poll time.Duration) {
	return time.Duration(c.Window.WaitSeconds) * time.Second,
		time.Duration(c.Window.PollIntervalMs) * time.Millisecond
}

// SeatTimeout is the default budget for one seating session.
func (c Config) SeatTimeout() time.Duration {
	return time.Duration(c.Seats.DefaultTimeoutSeconds) * time.Second
}

// PollInterval is the lobby poller cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalSeconds) * time.Second
}
