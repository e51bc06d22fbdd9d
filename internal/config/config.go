package config

import "time"

// Config is the root configuration of the export command.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Export       ExportConfig       `yaml:"export"`
	ContentStore ContentStoreConfig `yaml:"content_store"`
	Log          LogConfig          `yaml:"log"`
	Trace        TraceConfig        `yaml:"trace"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"8"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// ExportConfig holds pipeline settings.
type ExportConfig struct {
	RunTimeout         time.Duration `yaml:"run_timeout"          env:"EXPORT_RUN_TIMEOUT"          env-default:"5m"`
	Workers            int           `yaml:"workers"              env:"EXPORT_WORKERS"              env-default:"4"`
	MaxConflictRetries int           `yaml:"max_conflict_retries" env:"EXPORT_MAX_CONFLICT_RETRIES" env-default:"3"`
	ConflictBackoff    time.Duration `yaml:"conflict_backoff"     env:"EXPORT_CONFLICT_BACKOFF"     env-default:"500ms"`
	SettleEvents       bool          `yaml:"settle_events"        env:"EXPORT_SETTLE_EVENTS"        env-default:"true"`
	// SyncedEventRetentionDays is how long settled gloss events are kept
	// before cmd/cleanup removes them.
	SyncedEventRetentionDays int `yaml:"synced_event_retention_days" env:"EXPORT_SYNCED_EVENT_RETENTION_DAYS" env-default:"30"`
}

// ContentStoreConfig holds settings of the GitHub repository that receives
// the exported documents.
type ContentStoreConfig struct {
	BaseURL        string        `yaml:"base_url"        env:"CONTENT_STORE_BASE_URL"        env-default:"https://api.github.com"`
	Owner          string        `yaml:"owner"           env:"CONTENT_STORE_OWNER"           env-required:"true"`
	Repo           string        `yaml:"repo"            env:"CONTENT_STORE_REPO"            env-required:"true"`
	Branch         string        `yaml:"branch"          env:"CONTENT_STORE_BRANCH"          env-default:"main"`
	Root           string        `yaml:"root"            env:"CONTENT_STORE_ROOT"            env-default:"glosses"`
	Token          string        `yaml:"token"           env:"CONTENT_STORE_TOKEN"           env-required:"true"`
	APIVersion     string        `yaml:"api_version"     env:"CONTENT_STORE_API_VERSION"     env-default:"2022-11-28"`
	Timeout        time.Duration `yaml:"timeout"         env:"CONTENT_STORE_TIMEOUT"         env-default:"15s"`
	CommitterName  string        `yaml:"committer_name"  env:"CONTENT_STORE_COMMITTER_NAME"`
	CommitterEmail string        `yaml:"committer_email" env:"CONTENT_STORE_COMMITTER_EMAIL"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// TraceConfig holds OpenTelemetry settings. With Enabled and no Endpoint,
// spans are written to stderr.
type TraceConfig struct {
	Enabled     bool    `yaml:"enabled"      env:"TRACE_ENABLED"      env-default:"false"`
	Endpoint    string  `yaml:"endpoint"     env:"TRACE_ENDPOINT"`
	Insecure    bool    `yaml:"insecure"     env:"TRACE_INSECURE"     env-default:"false"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACE_SAMPLE_RATIO" env-default:"1.0"`
	ServiceName string  `yaml:"service_name" env:"TRACE_SERVICE_NAME" env-default:"gloss-export"`
}

// HasCommitter reports whether an explicit commit identity is configured.
func (c ContentStoreConfig) HasCommitter() bool {
	return c.CommitterName != "" && c.CommitterEmail != ""
}
