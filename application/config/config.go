// Package config loads and validates the bridge configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
)

// Environment variables that override file values.
const (
	EnvBroker   = "FOGBRIDGE_BROKER"
	EnvLogLevel = "FOGBRIDGE_LOG_LEVEL"
)

// Config is the complete bridge configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Broker  BrokerConfig  `yaml:"broker"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Publish PublishConfig `yaml:"publish"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type BrokerConfig struct {
	URL                  string        `yaml:"url" validate:"required,url"`
	ClientID             string        `yaml:"client_id"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	KeepAlive            time.Duration `yaml:"keep_alive" validate:"gte=0"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval" validate:"gt=0"`
}

type IngestConfig struct {
	Topic           string `yaml:"topic" validate:"required"`
	QoS             byte   `yaml:"qos" validate:"lte=2"`
	ReadingField    string `yaml:"reading_field" validate:"required"`
	StatusField     string `yaml:"status_field"`
	DeviceField     string `yaml:"device_field"`
	DefaultDeviceID string `yaml:"default_device_id" validate:"required"`
	QueueSize       int    `yaml:"queue_size" validate:"gte=1"`
	Workers         int    `yaml:"workers" validate:"gte=1,lte=64"`
}

type SandboxConfig struct {
	ModulePath       string        `yaml:"module_path" validate:"required"`
	InvokeTimeout    time.Duration `yaml:"invoke_timeout" validate:"gte=0"`
	LoadTimeout      time.Duration `yaml:"load_timeout" validate:"gte=0"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages" validate:"lte=65536"`
	MaxLogBytes      uint32        `yaml:"max_log_bytes" validate:"gte=1,lte=4096"`
	AllowWASI        bool          `yaml:"allow_wasi"`

	// ReinstantiateOnClose is a pointer so an explicit false survives defaulting.
	ReinstantiateOnClose *bool `yaml:"reinstantiate_on_close"`
}

// Reinstantiate reports the effective reinstantiate_on_close setting.
func (s SandboxConfig) Reinstantiate() bool {
	return s.ReinstantiateOnClose == nil || *s.ReinstantiateOnClose
}

type PublishConfig struct {
	Topic     string `yaml:"topic" validate:"required"`
	QoS       byte   `yaml:"qos" validate:"lte=2"`
	Retain    bool   `yaml:"retain"`
	Precision int    `yaml:"precision" validate:"gte=0,lte=10"`
}

type StoreConfig struct {
	CSV      CSVConfig      `yaml:"csv"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type CSVConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" validate:"omitempty,sqlident"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

var sqlIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validate is shared; validator caches struct metadata per instance.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdent.MatchString(fl.Field().String())
	})
	return v
}

// Default returns the configuration used for every field the file leaves unset.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Broker: BrokerConfig{
			URL:                  "tcp://localhost:1883",
			KeepAlive:            60 * time.Second,
			ConnectTimeout:       10 * time.Second,
			MaxReconnectInterval: time.Minute,
		},
		Ingest: IngestConfig{
			Topic:           "ic/esp32/#",
			ReadingField:    "umidade",
			StatusField:     "seco",
			DeviceField:     "device_id",
			DefaultDeviceID: "RaspberryPi-Fog1",
			QueueSize:       256,
			Workers:         1,
		},
		Sandbox: SandboxConfig{
			InvokeTimeout: 250 * time.Millisecond,
			LoadTimeout:   10 * time.Second,
			MaxLogBytes:   64,
		},
		Publish: PublishConfig{
			Topic:     "ic/fog/processed",
			Precision: 2,
		},
		Store: StoreConfig{
			Postgres: PostgresConfig{Table: "fog_records"},
		},
	}
}

// Load reads path, overlays it on Default, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &sdkErrors.ConfigError{Err: err}
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without validating. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &sdkErrors.ConfigError{Err: fmt.Errorf("decode yaml: %w", err)}
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBroker); ok && v != "" {
		c.Broker.URL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks struct constraints. The first violation is returned as a
// ConfigError naming the offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &sdkErrors.ConfigError{
			Field: strings.TrimPrefix(fe.Namespace(), "Config."),
			Err:   fmt.Errorf("failed on %q (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &sdkErrors.ConfigError{Err: err}
}
