package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Store.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Databases  []DatabaseConfig  `yaml:"databases"`
	Tokenizers []TokenizerConfig `yaml:"tokenizers"`
	Checkpoint CheckpointConfig  `yaml:"checkpoint"`
	Trace      TraceConfig       `yaml:"trace"`
	MQTT       MQTTConfig        `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig    `yaml:"influxdb"`
	API        APIConfig         `yaml:"api"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig describes one SQLite database and the configs applied to
// its connections.
type DatabaseConfig struct {
	Path         string       `yaml:"path"`
	Readonly     bool         `yaml:"readonly"`
	BusyTimeout  int          `yaml:"busy_timeout"`
	MaxOpenConns int          `yaml:"max_open_conns"`
	Cipher       CipherConfig `yaml:"cipher"`

	// Tokenizers names entries of the top-level tokenizers section to
	// register on every connection.
	Tokenizers []string `yaml:"tokenizers"`
}

// CipherConfig contains encryption settings. The key itself is never stored
// in the file; KeyEnv names the environment variable holding it.
type CipherConfig struct {
	KeyEnv   string `yaml:"key_env"`
	PageSize int    `yaml:"page_size"`
}

// Enabled reports whether a cipher key is configured.
func (c CipherConfig) Enabled() bool {
	return c.KeyEnv != ""
}

// Key returns the key read from KeyEnv.
func (c CipherConfig) Key() []byte {
	if c.KeyEnv == "" {
		return nil
	}
	return []byte(os.Getenv(c.KeyEnv))
}

// TokenizerConfig registers a full-text tokenizer address under a name.
type TokenizerConfig struct {
	Name string `yaml:"name"`

	// Address is the hex-encoded tokenizer address payload.
	Address string `yaml:"address"`
}

// DecodeAddress returns the address payload bytes.
func (t TokenizerConfig) DecodeAddress() ([]byte, error) {
	return hex.DecodeString(t.Address)
}

// CheckpointConfig contains WAL checkpoint scheduling settings.
type CheckpointConfig struct {
	// Delay is how long a database must stay quiet before it is checkpointed.
	Delay time.Duration `yaml:"delay"`

	// PageThreshold is the WAL size in frames above which a commit
	// schedules a checkpoint.
	PageThreshold int `yaml:"page_threshold"`

	// EventBuffer is the capacity of the commit event channel.
	EventBuffer int `yaml:"event_buffer"`

	// Timeout bounds a single checkpoint.
	Timeout time.Duration `yaml:"timeout"`

	// SweepSchedule is a cron expression for checkpointing every open
	// database regardless of activity. Empty disables the sweep.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// TraceConfig selects the trace sinks attached to connections.
type TraceConfig struct {
	// SQL logs every statement at debug level.
	SQL bool `yaml:"sql"`

	// Performance reports statement footprints.
	Performance bool `yaml:"performance"`

	// SlowThreshold logs footprints at least this slow as warnings.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the HTTP admin API settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	JWT       JWTConfig        `yaml:"jwt"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket settings for the event stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// JWTConfig contains bearer token settings. An empty secret leaves the
// admin API unauthenticated, which is only suitable on a loopback host.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYSTORE_SECTION_KEY
// For example: GRAYSTORE_DATABASE_PATH, GRAYSTORE_MQTT_HOST
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying defaults, environment
// overrides and validation exactly as Load does.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.fillDatabaseDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Checkpoint: CheckpointConfig{
			Delay:         2 * time.Second,
			PageThreshold: 1000,
			EventBuffer:   256,
			Timeout:       30 * time.Second,
		},
		Trace: TraceConfig{
			SlowThreshold: 500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graystore",
			},
			QoS:         1,
			TopicPrefix: "graystore",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// defaultBusyTimeout is applied to databases that leave busy_timeout unset.
const defaultBusyTimeout = 5

func (c *Config) fillDatabaseDefaults() {
	for i := range c.Databases {
		if c.Databases[i].BusyTimeout == 0 {
			c.Databases[i].BusyTimeout = defaultBusyTimeout
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYSTORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database: the override replaces the first entry's path, or adds one.
	if v := os.Getenv("GRAYSTORE_DATABASE_PATH"); v != "" {
		if len(cfg.Databases) == 0 {
			cfg.Databases = append(cfg.Databases, DatabaseConfig{})
		}
		cfg.Databases[0].Path = v
	}

	// Checkpoint
	if v := os.Getenv("GRAYSTORE_CHECKPOINT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Checkpoint.Delay = d
		}
	}
	if v := os.Getenv("GRAYSTORE_CHECKPOINT_SWEEP"); v != "" {
		cfg.Checkpoint.SweepSchedule = v
	}

	// MQTT
	if v := os.Getenv("GRAYSTORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYSTORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYSTORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYSTORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GRAYSTORE_API_JWT_SECRET"); v != "" {
		cfg.API.JWT.Secret = v
	}

	// Logging
	if v := os.Getenv("GRAYSTORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	seen := make(map[string]bool)
	for i, db := range c.Databases {
		if db.Path == "" {
			errs = append(errs, fmt.Sprintf("databases[%d].path is required", i))
			continue
		}
		if seen[db.Path] {
			errs = append(errs, fmt.Sprintf("databases[%d].path %q is listed twice", i, db.Path))
		}
		seen[db.Path] = true

		if db.BusyTimeout < 0 {
			errs = append(errs, fmt.Sprintf("databases[%d].busy_timeout cannot be negative", i))
		}
		if db.Cipher.Enabled() && len(db.Cipher.Key()) == 0 {
			errs = append(errs, fmt.Sprintf("databases[%d].cipher.key_env %s is not set", i, db.Cipher.KeyEnv))
		}
		for _, name := range db.Tokenizers {
			if !c.hasTokenizer(name) {
				errs = append(errs, fmt.Sprintf("databases[%d].tokenizers: %q is not defined", i, name))
			}
		}
	}

	// Tokenizer validation
	for i, tk := range c.Tokenizers {
		if tk.Name == "" {
			errs = append(errs, fmt.Sprintf("tokenizers[%d].name is required", i))
		}
		if b, err := tk.DecodeAddress(); err != nil || len(b) == 0 {
			errs = append(errs, fmt.Sprintf("tokenizers[%d].address must be non-empty hex", i))
		}
	}

	// Checkpoint validation
	if c.Checkpoint.Delay < 0 {
		errs = append(errs, "checkpoint.delay cannot be negative")
	}
	if c.Checkpoint.PageThreshold < 0 {
		errs = append(errs, "checkpoint.page_threshold cannot be negative")
	}
	if c.Checkpoint.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Checkpoint.SweepSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("checkpoint.sweep_schedule: %v", err))
		}
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535 when api is enabled")
	}
	if c.API.JWT.Secret != "" && len(c.API.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) hasTokenizer(name string) bool {
	for _, tk := range c.Tokenizers {
		if tk.Name == name {
			return true
		}
	}
	return false
}

// Database returns the entry for path.
func (c *Config) Database(path string) (DatabaseConfig, bool) {
	for _, db := range c.Databases {
		if db.Path == path {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}
