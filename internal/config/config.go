// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // site.time_zone must resolve on minimal images

	"github.com/spf13/viper"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
	localstorage "github.com/JakeFAU/archive-harvester/internal/storage/local"
)

// Harvesting modes.
const (
	ModeArticles = "articles"
	ModeEditions = "editions"
)

// Storage backends.
const (
	BackendGCS    = "gcs"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Article output formats.
const (
	FormatXLSX  = "xlsx"
	FormatJSONL = "jsonl"
)

// EarliestDate is the first day the archive has content for.
const EarliestDate = "2007-06-02"

// Today is accepted wherever a date is configured and resolves at run time.
const Today = "today"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Articles   RunConfig        `mapstructure:"articles"`
	Editions   RunConfig        `mapstructure:"editions"`
	Output     OutputConfig     `mapstructure:"output"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SiteConfig identifies the archive and how we present ourselves to it.
type SiteConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Collection string `mapstructure:"collection"`
	UserAgent  string `mapstructure:"user_agent"`
	TimeZone   string `mapstructure:"time_zone"`
}

// HTTPConfig configures fetch timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds         int `mapstructure:"timeout_seconds"`
	DocumentTimeoutSeconds int `mapstructure:"document_timeout_seconds"`
	MaxAttempts            int `mapstructure:"max_attempts"`
	BackoffBaseMs          int `mapstructure:"backoff_base_ms"`
}

// PolitenessConfig spaces out requests within a date.
type PolitenessConfig struct {
	PageDelayMs       int     `mapstructure:"page_delay_ms"`
	ItemDelayMs       int     `mapstructure:"item_delay_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// RunConfig holds the run parameters of one harvesting mode.
type RunConfig struct {
	StartDate     string        `mapstructure:"start_date"`
	EndDate       string        `mapstructure:"end_date"`
	Direction     string        `mapstructure:"direction"`
	MaxItems      int           `mapstructure:"max_items"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	UseCheckpoint bool          `mapstructure:"use_checkpoint"`
	CheckpointKey string        `mapstructure:"checkpoint_key"`
	DateDelayMs   int           `mapstructure:"date_delay_ms"`
}

// OutputConfig selects how article records are serialized.
type OutputConfig struct {
	ArticlesFormat string `mapstructure:"articles_format"`
}

// StorageConfig selects the object store backend.
type StorageConfig struct {
	Backend string              `mapstructure:"backend"`
	Bucket  string              `mapstructure:"bucket"`
	Local   localstorage.Config `mapstructure:"local"`
}

// DatabaseConfig controls the optional Postgres manifest.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the optional notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the status server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load builds a Config from defaults, an optional file and the environment.
// Variables use the HARVESTER_ prefix, e.g. HARVESTER_STORAGE_BUCKET.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("site.base_url", "https://www.aljarida.com")
	v.SetDefault("site.collection", "aljarida")
	v.SetDefault("site.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("site.time_zone", "Asia/Kuwait")

	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.document_timeout_seconds", 60)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_base_ms", 1000)

	v.SetDefault("politeness.page_delay_ms", 1000)
	v.SetDefault("politeness.item_delay_ms", 1000)
	v.SetDefault("politeness.requests_per_second", 2.0)

	v.SetDefault("articles.start_date", EarliestDate)
	v.SetDefault("articles.end_date", Today)
	v.SetDefault("articles.direction", string(crawler.Forward))
	v.SetDefault("articles.max_items", 0)
	v.SetDefault("articles.max_duration", time.Duration(0))
	v.SetDefault("articles.use_checkpoint", true)
	v.SetDefault("articles.checkpoint_key", "")
	v.SetDefault("articles.date_delay_ms", 2000)

	v.SetDefault("editions.start_date", Today)
	v.SetDefault("editions.end_date", EarliestDate)
	v.SetDefault("editions.direction", string(crawler.Backward))
	v.SetDefault("editions.max_items", 50)
	v.SetDefault("editions.max_duration", 330*time.Minute)
	v.SetDefault("editions.use_checkpoint", true)
	v.SetDefault("editions.checkpoint_key", "")
	v.SetDefault("editions.date_delay_ms", 1000)

	v.SetDefault("output.articles_format", FormatXLSX)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.local.base_dir", "data")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "document_manifest")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if u, err := url.Parse(c.Site.BaseURL); err != nil || !u.IsAbs() {
		add("site.base_url must be an absolute URL")
	}
	if strings.TrimSpace(c.Site.Collection) == "" {
		add("site.collection is required")
	}
	if strings.TrimSpace(c.Site.UserAgent) == "" {
		add("site.user_agent is required")
	}
	if c.Site.TimeZone != "" {
		if _, err := time.LoadLocation(c.Site.TimeZone); err != nil {
			add("site.time_zone %q is unknown", c.Site.TimeZone)
		}
	}

	if c.HTTP.TimeoutSeconds <= 0 {
		add("http.timeout_seconds must be > 0")
	}
	if c.HTTP.DocumentTimeoutSeconds <= 0 {
		add("http.document_timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		add("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffBaseMs < 0 {
		add("http.backoff_base_ms must be >= 0")
	}
	if c.Politeness.PageDelayMs < 0 || c.Politeness.ItemDelayMs < 0 {
		add("politeness delays must be >= 0")
	}
	if c.Politeness.RequestsPerSecond < 0 {
		add("politeness.requests_per_second must be >= 0")
	}

	for _, mode := range []string{ModeArticles, ModeEditions} {
		run, _ := c.Run(mode)
		for _, p := range run.problems() {
			add("%s.%s", mode, p)
		}
	}

	switch c.Output.ArticlesFormat {
	case FormatXLSX, FormatJSONL:
	default:
		add("output.articles_format must be %q or %q", FormatXLSX, FormatJSONL)
	}

	switch c.Storage.Backend {
	case BackendGCS:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			add("storage.bucket is required for the gcs backend")
		}
	case BackendLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			add("storage.local.base_dir is required for the local backend")
		}
	case BackendMemory:
	default:
		add("storage.backend must be one of gcs, local, memory")
	}

	if c.Database.DSN != "" && c.Database.MinConns > c.Database.MaxConns {
		add("database.min_conns must be <= database.max_conns")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		add("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port must be between 0 and 65535")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Run returns the run section for mode.
func (c Config) Run(mode string) (RunConfig, error) {
	switch mode {
	case ModeArticles:
		return c.Articles, nil
	case ModeEditions:
		return c.Editions, nil
	default:
		return RunConfig{}, fmt.Errorf("unknown mode %q", mode)
	}
}

// SetRun replaces the run section for mode.
func (c *Config) SetRun(mode string, run RunConfig) error {
	switch mode {
	case ModeArticles:
		c.Articles = run
	case ModeEditions:
		c.Editions = run
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

// CheckpointKey returns the configured checkpoint key for mode, falling back
// to the per-collection default.
func (c Config) CheckpointKey(mode string) string {
	run, err := c.Run(mode)
	if err == nil && run.CheckpointKey != "" {
		return run.CheckpointKey
	}
	name := "articles"
	if mode == ModeEditions {
		name = "pdf"
	}
	return fmt.Sprintf("%s/_state/%s_last_success_date.txt", c.Site.Collection, name)
}

// PageTimeout is the per-attempt timeout for HTML pages.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DocumentTimeout is the per-attempt timeout for binary downloads.
func (c Config) DocumentTimeout() time.Duration {
	return time.Duration(c.HTTP.DocumentTimeoutSeconds) * time.Second
}

// RetryPolicy builds the fetch retry policy for the given timeout.
func (c Config) RetryPolicy(timeout time.Duration) crawler.RetryPolicy {
	return crawler.RetryPolicy{
		MaxAttempts: c.HTTP.MaxAttempts,
		BaseDelay:   time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond,
		Timeout:     timeout,
	}
}

// PipelineDelays converts the politeness section.
func (c Config) PipelineDelays() crawler.PipelineDelays {
	return crawler.PipelineDelays{
		Page: time.Duration(c.Politeness.PageDelayMs) * time.Millisecond,
		Item: time.Duration(c.Politeness.ItemDelayMs) * time.Millisecond,
	}
}

// Params resolves the run section into orchestrator parameters. "today" and
// an empty date resolve to today.
func (r RunConfig) Params(today crawler.DateKey) (crawler.RunParams, error) {
	start, err := resolveDate(r.StartDate, today)
	if err != nil {
		return crawler.RunParams{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := resolveDate(r.EndDate, today)
	if err != nil {
		return crawler.RunParams{}, fmt.Errorf("end_date: %w", err)
	}
	dir, err := crawler.ParseDirection(r.Direction)
	if err != nil {
		return crawler.RunParams{}, fmt.Errorf("direction: %w", err)
	}
	return crawler.RunParams{
		Start:     start,
		End:       end,
		Direction: dir,
		Budget: crawler.RunBudget{
			MaxItems:    r.MaxItems,
			MaxDuration: r.MaxDuration,
		},
		UseCheckpoint: r.UseCheckpoint,
		DateDelay:     time.Duration(r.DateDelayMs) * time.Millisecond,
	}, nil
}

func (r RunConfig) problems() []string {
	var out []string
	dates := []struct{ field, raw string }{{"start_date", r.StartDate}, {"end_date", r.EndDate}}
	for _, d := range dates {
		if _, err := resolveDate(d.raw, crawler.DateKey{}); err != nil {
			out = append(out, fmt.Sprintf("%s %q is not YYYY-MM-DD or %q", d.field, d.raw, Today))
		}
	}
	if _, err := crawler.ParseDirection(r.Direction); err != nil {
		out = append(out, "direction must be forward or backward")
	}
	if r.MaxItems < 0 {
		out = append(out, "max_items must be >= 0")
	}
	if r.MaxDuration < 0 {
		out = append(out, "max_duration must be >= 0")
	}
	if r.DateDelayMs < 0 {
		out = append(out, "date_delay_ms must be >= 0")
	}
	return out
}

func resolveDate(raw string, today crawler.DateKey) (crawler.DateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, Today) {
		return today, nil
	}
	d, err := crawler.ParseDateKey(raw)
	if err != nil {
		return crawler.DateKey{}, err
	}
	return d, nil
}

// IsValidationError reports whether err is a configuration error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
