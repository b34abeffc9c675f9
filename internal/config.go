package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/feinschmecker/internal/tasks"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Coordination backends.
const (
	CoordMemory = "memory"
	CoordSQLite = "sqlite"
	CoordNATS   = "nats"
)

// Task backends.
const (
	TasksLocal = "local"
	TasksNATS  = "nats"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Graph      GraphConfig       `yaml:"graph"`
	Coord      CoordConfig       `yaml:"coord"`
	Tasks      TasksConfig       `yaml:"tasks"`
	Cache      CacheConfig       `yaml:"cache"`
	Pagination PaginationConfig  `yaml:"pagination"`
	Auth       AuthConfig        `yaml:"auth"`
	CORS       CORSConfig        `yaml:"cors"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	SSE        SSEConfig         `yaml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"graph", &c.Graph},
		{"coord", &c.Coord},
		{"tasks", &c.Tasks},
		{"cache", &c.Cache},
		{"pagination", &c.Pagination},
		{"auth", &c.Auth},
		{"metrics", &c.Metrics},
		{"sse", &c.SSE},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GraphConfig locates the recipe graph.
//
// Location is a local N-Triples file or an http(s) URL. Remote graphs are
// downloaded into CacheDir before loading.
type GraphConfig struct {
	Location        string        `yaml:"location"`
	CacheDir        string        `yaml:"cache_dir"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	WaitPoll        time.Duration `yaml:"wait_poll"`
	LoadRetries     int           `yaml:"load_retries"`
	Placeholders    bool          `yaml:"placeholders"`
	CreateIfMissing bool          `yaml:"create_if_missing"`
	Watch           bool          `yaml:"watch"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Location, validation.Required),
		validation.Field(&c.CacheDir, validation.Required),
		validation.Field(&c.WaitTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WaitPoll, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.LoadRetries, validation.Min(0)),
	)
}

// CoordConfig selects the shared version store.
type CoordConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	NATSURL    string `yaml:"nats_url"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
}

// Validate validates the coordination configuration.
func (c *CoordConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(CoordMemory, CoordSQLite, CoordNATS)),
		validation.Field(&c.SQLitePath, validation.When(c.Backend == CoordSQLite, validation.Required)),
		validation.Field(&c.NATSURL, validation.When(c.Backend == CoordNATS, validation.Required)),
		validation.Field(&c.Bucket, validation.When(c.Backend == CoordNATS, validation.Required)),
	)
}

// TasksConfig configures the task queue, workers and result store.
type TasksConfig struct {
	Backend     string        `yaml:"backend"`
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	SoftLimit   time.Duration `yaml:"soft_time_limit"`
	HardLimit   time.Duration `yaml:"hard_time_limit"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffUnit time.Duration `yaml:"backoff_unit"`
	BackoffBase float64       `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
	// ResultDir holds the local result store; empty keeps results in memory.
	ResultDir     string `yaml:"result_dir"`
	NATSURL       string `yaml:"nats_url"`
	Stream        string `yaml:"stream"`
	Subject       string `yaml:"subject"`
	Durable       string `yaml:"durable"`
	ResultsBucket string `yaml:"results_bucket"`
}

// Validate validates the task configuration.
func (c *TasksConfig) Validate() error {
	nats := c.Backend == TasksNATS
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(TasksLocal, TasksNATS)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.SoftLimit, validation.Required),
		validation.Field(&c.HardLimit, validation.Required),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.BackoffUnit, validation.Required),
		validation.Field(&c.BackoffBase, validation.Required, validation.Min(1.0)),
		validation.Field(&c.BackoffCap, validation.Required),
		validation.Field(&c.ResultTTL, validation.Required),
		validation.Field(&c.NATSURL, validation.When(nats, validation.Required)),
		validation.Field(&c.Stream, validation.When(nats, validation.Required)),
		validation.Field(&c.Subject, validation.When(nats, validation.Required)),
		validation.Field(&c.Durable, validation.When(nats, validation.Required)),
		validation.Field(&c.ResultsBucket, validation.When(nats, validation.Required)),
	); err != nil {
		return err
	}
	if c.HardLimit < c.SoftLimit {
		return fmt.Errorf("hard_time_limit %s is shorter than soft_time_limit %s", c.HardLimit, c.SoftLimit)
	}
	return nil
}

// Limits returns the worker time limits and retry schedule.
func (c *TasksConfig) Limits() tasks.Limits {
	return tasks.Limits{
		Soft:        c.SoftLimit,
		Hard:        c.HardLimit,
		MaxRetries:  c.MaxRetries,
		BackoffUnit: c.BackoffUnit,
		BackoffBase: c.BackoffBase,
		BackoffCap:  c.BackoffCap,
	}
}

// CacheConfig sizes the search submission cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int64         `yaml:"max_entries"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required),
		validation.Field(&c.MaxEntries, validation.Required, validation.Min(int64(1))),
	)
}

// PaginationConfig bounds page sizes.
type PaginationConfig struct {
	DefaultPerPage int `yaml:"default_per_page"`
	MaxPerPage     int `yaml:"max_per_page"`
}

// Validate validates the pagination configuration.
func (c *PaginationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxPerPage, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultPerPage, validation.Required, validation.Min(1), validation.Max(c.MaxPerPage)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CORSConfig lists browser origins allowed to call the API. "*" allows any.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

var pathPattern = regexp.MustCompile(`^/[A-Za-z0-9_/-]*$`)

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required, validation.Match(pathPattern))),
	)
}

// SSEConfig controls the change feed.
type SSEConfig struct {
	GraphThrottle time.Duration `yaml:"graph_throttle"`
}

// Validate validates the SSE configuration.
func (c *SSEConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.GraphThrottle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Graph: GraphConfig{
			Location:        "./data/feinschmecker.nt",
			CacheDir:        "./data/cache",
			WaitTimeout:     60 * time.Second,
			WaitPoll:        time.Second,
			LoadRetries:     3,
			CreateIfMissing: true,
			Watch:           true,
		},
		Coord: CoordConfig{
			Backend:    CoordSQLite,
			SQLitePath: "./data/coord.db",
			Bucket:     "feinschmecker",
			Prefix:     "feinschmecker:",
		},
		Tasks: TasksConfig{
			Backend:       TasksLocal,
			Workers:       4,
			QueueSize:     100,
			SoftLimit:     20 * time.Second,
			HardLimit:     30 * time.Second,
			MaxRetries:    3,
			BackoffUnit:   time.Second,
			BackoffBase:   2,
			BackoffCap:    30 * time.Second,
			ResultTTL:     time.Hour,
			Stream:        "FEINSCHMECKER_TASKS",
			Subject:       "feinschmecker.tasks",
			Durable:       "feinschmecker-workers",
			ResultsBucket: "feinschmecker_results",
		},
		Cache: CacheConfig{
			TTL:        300 * time.Second,
			MaxEntries: 10000,
		},
		Pagination: PaginationConfig{
			DefaultPerPage: 20,
			MaxPerPage:     100,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		SSE: SSEConfig{
			GraphThrottle: 2 * time.Second,
		},
	}
}
