package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Graph    GraphConfig    `mapstructure:"graph"    validate:"required"`
	Twitter  TwitterConfig  `mapstructure:"twitter"  validate:"required"`
	Indexer  IndexerConfig  `mapstructure:"indexer"  validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all Postgres related settings. Postgres holds the
// task rows and the donated OAuth tokens.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// GraphConfig contains all graph store related settings. A blank URI selects
// the in-memory store, which is only suitable for development.
type GraphConfig struct {
	URI      string `mapstructure:"uri"      validate:"omitempty,uri"`
	Username string `mapstructure:"username" validate:"required_with=URI"`
	Password string `mapstructure:"password" validate:"required_with=URI"`
}

// TwitterConfig contains the upstream API and OAuth settings.
type TwitterConfig struct {
	BaseURL      string `mapstructure:"base_url"      validate:"omitempty,url"`
	TokenURL     string `mapstructure:"token_url"     validate:"omitempty,url"`
	ClientID     string `mapstructure:"client_id"     validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
}

// IndexerConfig contains workflow and engine tuning settings.
type IndexerConfig struct {
	PageSize          int `mapstructure:"page_size"           validate:"required,gt=0,lte=100"`
	FollowingPageSize int `mapstructure:"following_page_size" validate:"required,gt=0,lte=1000"`
	ChunkSize         int `mapstructure:"chunk_size"          validate:"required,gt=0"`
	WorkerCount       int `mapstructure:"worker_count"        validate:"required,gt=0"`
	// RateLimitFallbackMinutes is the suspension length when the upstream
	// omits a quota reset time.
	RateLimitFallbackMinutes int `mapstructure:"rate_limit_fallback_minutes" validate:"required,gt=0"`
}

// QueueConfig selects and configures the task queue backend.
type QueueConfig struct {
	// Driver is "channel" for the in-process queue or "kafka" for the
	// Kafka-backed one.
	Driver  string   `mapstructure:"driver"  validate:"required,oneof=channel kafka"`
	Size    int      `mapstructure:"size"    validate:"required,gt=0"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Driver kafka,dive,hostname_port"`
	Topic   string   `mapstructure:"topic"   validate:"required_if=Driver kafka"`
	GroupID string   `mapstructure:"group_id"`
}
