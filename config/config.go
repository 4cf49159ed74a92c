// Package config is the launcher's typed settings surface: viper-driven
// environment/flag/file configuration, unmarshalled into a flat Config and
// checked with a single Validate() call: a typed struct with defaults
// plus a Validate() method, scaled down to the single component this
// launcher actually has.
package config

import (
	"fmt"
	"strings"

	libval "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/nabbar/ottd-masterserver/duration"
)

// Backend selects which registry.Registry implementation app.Run wires up.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendDynamoDB Backend = "dynamodb"
	BackendRedis    Backend = "redis"
)

// Config is the flat, typed settings surface for cmd/masterserver.
type Config struct {
	// BindAddresses is one or more "host:port" UDP listen addresses. At
	// least one is required; most deployments need only one, but a
	// dual-stack host may bind an IPv4 and an IPv6 socket side by side.
	BindAddresses []string `mapstructure:"bind_addresses" validate:"required,min=1,dive,hostname_port"`

	// HTTPAddr is the "host:port" the JSON read path (component H) listens
	// on.
	HTTPAddr string `mapstructure:"http_addr" validate:"required,hostname_port"`

	// ProxyProtocol toggles whether inbound UDP datagrams carry a PROXY
	// protocol v1 header.
	ProxyProtocol bool `mapstructure:"proxy_protocol"`

	// SocksURL, if non-empty, routes outbound probes through a SOCKS5
	// relay instead of the bound UDP socket directly.
	SocksURL string `mapstructure:"socks_url" validate:"omitempty,url"`

	// RegistryBackend selects the storage backend for component G.
	RegistryBackend Backend `mapstructure:"registry_backend" validate:"required,oneof=memory dynamodb redis"`

	// DynamoDBTable is the table name; required when RegistryBackend is
	// "dynamodb".
	DynamoDBTable string `mapstructure:"dynamodb_table"`
	// DynamoDBEndpoint overrides the AWS SDK's default endpoint resolution
	// (used to point at a local DynamoDB for development).
	DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
	// DynamoDBAccessKey/DynamoDBSecretKey, when both set, are wired as a
	// static credentials provider instead of the SDK's default credential
	// chain — only useful alongside DynamoDBEndpoint, since a local
	// DynamoDB still requires some (any) access key/secret pair.
	DynamoDBAccessKey string `mapstructure:"dynamodb_access_key"`
	DynamoDBSecretKey string `mapstructure:"dynamodb_secret_key"`

	// RedisAddr is the "host:port" of the Redis server; required when
	// RegistryBackend is "redis".
	RedisAddr string `mapstructure:"redis_addr"`
	// RedisDB selects the logical Redis database index.
	RedisDB int `mapstructure:"redis_db"`

	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFormat selects the logrus formatter ("text" or "json").
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=text json"`

	// MetricsEnabled toggles the prometheus Recorder; when false, every
	// component is wired with a nil *metrics.Recorder.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// ProbeTimeout is the per-attempt wait the query tracker gives a
	// CLIENT_FIND_SERVER probe before retrying or giving up, accepting
	// the same "5d23h15m13s" days-capable syntax as the rest of the
	// duration package.
	ProbeTimeout duration.Duration `mapstructure:"probe_timeout"`

	// SweepInterval is how often the registry's stale-entry sweep runs.
	SweepInterval duration.Duration `mapstructure:"sweep_interval"`
}

// SetDefaults writes this package's defaults into v, so that environment
// variables or a config file only need to override what differs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bind_addresses", []string{"0.0.0.0:3978"})
	v.SetDefault("http_addr", "0.0.0.0:80")
	v.SetDefault("proxy_protocol", false)
	v.SetDefault("registry_backend", string(BackendMemory))
	v.SetDefault("redis_db", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("probe_timeout", "5s")
	v.SetDefault("sweep_interval", "5m")
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, CodeLoadFailed.Error(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags plus the cross-field rules viper tags can't
// express (a selected backend's required option group).
func (c *Config) Validate() error {
	err := CodeValidation.Error(nil)

	validate := libval.New()
	validate.RegisterValidation("hostname_port", validateHostPort)

	if e := validate.Struct(c); e != nil {
		if ve, ok := e.(libval.ValidationErrors); ok {
			for _, fe := range ve {
				err.Add(fmt.Errorf("field '%s' fails constraint '%s'", fe.StructNamespace(), fe.ActualTag()))
			}
		} else {
			err.Add(e)
		}
	}

	switch c.RegistryBackend {
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			err.Add(fmt.Errorf("dynamodb_table is required when registry_backend is dynamodb"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			err.Add(fmt.Errorf("redis_addr is required when registry_backend is redis"))
		}
	}

	if err.HasParent() {
		return err
	}
	return nil
}

func validateHostPort(fl libval.FieldLevel) bool {
	v := fl.Field().String()
	idx := strings.LastIndex(v, ":")
	return idx > 0 && idx < len(v)-1
}
