package cfg

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// ErrInvalidConfig is returned when the configuration cannot be loaded or
// fails validation. It is fatal: the process must not start.
var ErrInvalidConfig = errors.New("invalid configuration")

// Supported source engines
const (
	EngineKusto    = "kusto"
	EngineBigQuery = "bigquery"
	EngineMySQL    = "mysql"
	EnginePostgres = "pgx"
	EngineSQLite   = "sqlite3"
)

// Supported cursor stores
const (
	StatePebble   = "pebble"
	StateNats     = "nats"
	StatePostgres = "postgres"
	StateMemory   = "memory"
)

// SourceConfiguration describes the queryable data source
type SourceConfiguration struct {
	Engine            string   `toml:"engine" validate:"required,oneof=kusto bigquery mysql pgx sqlite3"`
	URI               string   `toml:"uri" validate:"required_unless=Engine bigquery"`
	Database          string   `toml:"database" validate:"required_if=Engine kusto"`
	Table             string   `toml:"table" validate:"required"`
	IdentityField     string   `toml:"identity_field" validate:"required"`
	IDPrefix          string   `toml:"id_prefix"`         // Bootstrap node id prefix (defaults to engine)
	Query             string   `toml:"query"`             // Bootstrap query
	IncrementalQuery  string   `toml:"incremental_query"` // Engine default derived from Query when empty
	PositionQuery     string   `toml:"position_query"`    // Engine default when empty
	CursorColumn      string   `toml:"cursor_column"`     // SQL engines: column backing generated queries
	ManagedIdentity   string   `toml:"managed_identity"`  // User-assigned managed identity client ID
	ProjectID         string   `toml:"project_id" validate:"required_if=Engine bigquery"`
	ExcludeProperties []string `toml:"exclude_properties"` // Glob patterns removed from row properties
	QueryTimeoutMS    int      `toml:"query_timeout_ms" validate:"gte=0"`
}

// StateConfiguration describes the durable cursor store
type StateConfiguration struct {
	Type        string `toml:"type" validate:"required,oneof=pebble nats postgres memory"`
	Name        string `toml:"name" validate:"required"` // Store name: pebble dir, KV bucket or table
	Key         string `toml:"key" validate:"required"`
	DataDir     string `toml:"data_dir" validate:"required_if=Type pebble"`
	NatsURL     string `toml:"nats_url" validate:"required_if=Type nats"`
	DatabaseURL string `toml:"database_url" validate:"required_if=Type postgres"`
	TimeoutMS   int    `toml:"timeout_ms" validate:"gte=0"`
}

// PubSubConfiguration describes the event bus
type PubSubConfiguration struct {
	Type             string   `toml:"type" validate:"required,oneof=kafka nats"`
	Name             string   `toml:"name" validate:"required"`
	Topic            string   `toml:"topic"` // Defaults to <source_id>-change
	Brokers          []string `toml:"brokers" validate:"required_if=Type kafka"`
	NatsURL          string   `toml:"nats_url" validate:"required_if=Type nats"`
	BatchSize        int      `toml:"batch_size" validate:"gte=0"`
	PublishTimeoutMS int      `toml:"publish_timeout_ms" validate:"gte=0"`
}

// PollingConfiguration controls the incremental poll loop
type PollingConfiguration struct {
	IntervalMS int  `toml:"interval_ms" validate:"gt=0"`
	AutoStart  bool `toml:"autostart"` // Start polling at boot when a cursor is already stored
}

// HTTPConfiguration for the acquire endpoint
type HTTPConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port" validate:"min=1,max=65535"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose    bool   `toml:"verbose"`
	Format     string `toml:"format" validate:"oneof=console json"` // "console" or "json"
	File       string `toml:"file"`                                 // Optional rotated log file
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	SourceID   string `toml:"source_id" validate:"required"`
	InstanceID string `toml:"instance_id"`

	Source     SourceConfiguration     `toml:"source"`
	State      StateConfiguration      `toml:"state"`
	PubSub     PubSubConfiguration     `toml:"pubsub"`
	Polling    PollingConfiguration    `toml:"polling"`
	HTTP       HTTPConfiguration       `toml:"http"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Default returns the default configuration
func Default() *Configuration {
	return &Configuration{
		Source: SourceConfiguration{
			Engine:         EngineKusto,
			QueryTimeoutMS: 30000,
		},
		State: StateConfiguration{
			Type:      StatePebble,
			Name:      "drasi-state",
			Key:       "database_cursor",
			DataDir:   "./reactivator-data",
			TimeoutMS: 5000,
		},
		PubSub: PubSubConfiguration{
			Type:             "kafka",
			Name:             "drasi-pubsub",
			Brokers:          []string{"localhost:9092"},
			BatchSize:        1,
			PublishTimeoutMS: 5000,
		},
		Polling: PollingConfiguration{
			IntervalMS: 10000,
		},
		HTTP: HTTPConfiguration{
			BindAddress: "0.0.0.0",
			Port:        80,
		},
		Logging: LoggingConfiguration{
			Verbose:    false,
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Config is the process-wide configuration
var Config = Default()

// Load loads configuration from file and applies environment overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("%w: failed to decode %s: %w", ErrInvalidConfig, configPath, err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults and environment")
		}
	}

	if err := applyEnv(Config, os.LookupEnv); err != nil {
		return err
	}

	if Config.Source.IDPrefix == "" {
		Config.Source.IDPrefix = Config.Source.Engine
	}

	if Config.InstanceID == "" {
		Config.InstanceID = generateInstanceID()
	}

	if Config.State.Type == StatePebble {
		if err := os.MkdirAll(Config.State.DataDir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create data directory: %w", ErrInvalidConfig, err)
		}
	}

	return nil
}

type stringEnv struct {
	name string
	dst  func(c *Configuration) *string
}

type intEnv struct {
	name string
	dst  func(c *Configuration) *int
}

// Environment variable names match the existing deployment manifests.
var stringEnvs = []stringEnv{
	{"SOURCE_ID", func(c *Configuration) *string { return &c.SourceID }},
	{"SOURCE_ENGINE", func(c *Configuration) *string { return &c.Source.Engine }},
	{"SOURCE_URI", func(c *Configuration) *string { return &c.Source.URI }},
	{"KUSTO_URI", func(c *Configuration) *string { return &c.Source.URI }},
	{"KUSTO_DATABASE", func(c *Configuration) *string { return &c.Source.Database }},
	{"KUSTO_TABLE", func(c *Configuration) *string { return &c.Source.Table }},
	{"KUSTO_QUERY", func(c *Configuration) *string { return &c.Source.Query }},
	{"INCREMENTAL_QUERY", func(c *Configuration) *string { return &c.Source.IncrementalQuery }},
	{"POSITION_QUERY", func(c *Configuration) *string { return &c.Source.PositionQuery }},
	{"CURSOR_COLUMN", func(c *Configuration) *string { return &c.Source.CursorColumn }},
	{"PRIMARY_KEY", func(c *Configuration) *string { return &c.Source.IdentityField }},
	{"ID_PREFIX", func(c *Configuration) *string { return &c.Source.IDPrefix }},
	{"USER_MANAGED_IDENTITY", func(c *Configuration) *string { return &c.Source.ManagedIdentity }},
	{"BIGQUERY_PROJECT_ID", func(c *Configuration) *string { return &c.Source.ProjectID }},
	{"STATE_STORE", func(c *Configuration) *string { return &c.State.Name }},
	{"STATE_STORE_TYPE", func(c *Configuration) *string { return &c.State.Type }},
	{"STATE_KEY", func(c *Configuration) *string { return &c.State.Key }},
	{"DATA_DIR", func(c *Configuration) *string { return &c.State.DataDir }},
	{"STATE_NATS_URL", func(c *Configuration) *string { return &c.State.NatsURL }},
	{"STATE_DATABASE_URL", func(c *Configuration) *string { return &c.State.DatabaseURL }},
	{"PUBSUB", func(c *Configuration) *string { return &c.PubSub.Name }},
	{"PUBSUB_TYPE", func(c *Configuration) *string { return &c.PubSub.Type }},
	{"PUBSUB_TOPIC", func(c *Configuration) *string { return &c.PubSub.Topic }},
	{"PUBSUB_NATS_URL", func(c *Configuration) *string { return &c.PubSub.NatsURL }},
	{"LOG_FORMAT", func(c *Configuration) *string { return &c.Logging.Format }},
	{"LOG_FILE", func(c *Configuration) *string { return &c.Logging.File }},
}

var intEnvs = []intEnv{
	{"POLLING_INTERVAL", func(c *Configuration) *int { return &c.Polling.IntervalMS }},
	{"QUERY_TIMEOUT_MS", func(c *Configuration) *int { return &c.Source.QueryTimeoutMS }},
	{"STATE_TIMEOUT_MS", func(c *Configuration) *int { return &c.State.TimeoutMS }},
	{"PUBLISH_TIMEOUT_MS", func(c *Configuration) *int { return &c.PubSub.PublishTimeoutMS }},
	{"HTTP_PORT", func(c *Configuration) *int { return &c.HTTP.Port }},
}

// applyEnv overlays environment variables onto c. lookup is os.LookupEnv
// outside of tests.
func applyEnv(c *Configuration, lookup func(string) (string, bool)) error {
	for _, e := range stringEnvs {
		if v, ok := lookup(e.name); ok && v != "" {
			*e.dst(c) = v
		}
	}

	for _, e := range intEnvs {
		v, ok := lookup(e.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidConfig, e.name, v)
		}
		*e.dst(c) = n
	}

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.PubSub.Brokers = splitList(v)
	}
	if v, ok := lookup("EXCLUDE_PROPERTIES"); ok && v != "" {
		c.Source.ExcludeProperties = splitList(v)
	}
	if v, ok := lookup("POLLING_AUTOSTART"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: POLLING_AUTOSTART must be a boolean, got %q", ErrInvalidConfig, v)
		}
		c.Polling.AutoStart = b
	}
	if v, ok := lookup("LOG_VERBOSE"); ok && v != "" {
		c.Logging.Verbose = v == "1" || strings.EqualFold(v, "true")
	}

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// generateInstanceID derives a stable instance id from the machine id
func generateInstanceID() string {
	id, err := machineid.ProtectedID("reactivator")
	if err != nil {
		hostname, herr := os.Hostname()
		if herr != nil {
			return "unknown"
		}
		return hostname
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return strconv.FormatUint(h.Sum64(), 16)
}

var validate = validator.New()

// Validate checks configuration for errors
func Validate() error {
	return ValidateConfig(Config)
}

// ValidateConfig checks c for errors
func ValidateConfig(c *Configuration) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Source.Query == "" && !(isSQLEngine(c.Source.Engine) && c.Source.CursorColumn != "") {
		return fmt.Errorf("%w: source.query is required unless a SQL engine generates it from cursor_column", ErrInvalidConfig)
	}

	if c.Source.Engine == EngineBigQuery && (c.Source.IncrementalQuery == "" || c.Source.PositionQuery == "") {
		return fmt.Errorf("%w: bigquery requires source.incremental_query and source.position_query", ErrInvalidConfig)
	}

	if isSQLEngine(c.Source.Engine) && c.Source.CursorColumn == "" &&
		(c.Source.IncrementalQuery == "" || c.Source.PositionQuery == "") {
		return fmt.Errorf("%w: %s requires source.cursor_column or both incremental_query and position_query",
			ErrInvalidConfig, c.Source.Engine)
	}

	return nil
}

func isSQLEngine(engine string) bool {
	return engine == EngineMySQL || engine == EnginePostgres || engine == EngineSQLite
}

// Topic returns the change topic for the configured source
func (c *Configuration) Topic() string {
	if c.PubSub.Topic != "" {
		return c.PubSub.Topic
	}
	return c.SourceID + "-change"
}
