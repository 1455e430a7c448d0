package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/observe"
)

const (
	EnvProd = "production"
	EnvDev  = "development"
	EnvTest = "test"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds the gateway configuration.
type Config struct {
	Env     string        `mapstructure:"env" default:"development" validate:"oneof=development production test"`
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	JWKS    JWKSConfig    `mapstructure:"jwks"`
	Observe ObserveConfig `mapstructure:"observe"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"10s" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"15s" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" default:"30s" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins" validate:"dive,required"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	Issuer    string        `mapstructure:"issuer" validate:"required,url"`
	Audience  string        `mapstructure:"audience" validate:"required"`
	Algorithm string        `mapstructure:"algorithm" default:"RS256" validate:"jwtalg"`
	Leeway    time.Duration `mapstructure:"leeway" default:"0s" validate:"gte=0"`
}

// JWKSConfig configures the key set fetch and cache.
type JWKSConfig struct {
	// URL defaults to <issuer>.well-known/jwks.json.
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	Authorization   string        `mapstructure:"authorization" secret:"true"`
	Timeout         time.Duration `mapstructure:"timeout" default:"10s" validate:"gt=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" default:"1048576" validate:"gt=0"`
	Cache           bool          `mapstructure:"cache" default:"true"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl" default:"1h" validate:"gte=0"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" default:"30s" validate:"gte=0"`
	RetryAttempts   int           `mapstructure:"retry_attempts" default:"1" validate:"gte=1,lte=10"`
	MaxFailures     int           `mapstructure:"max_failures" default:"5" validate:"gte=1"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout" default:"30s" validate:"gt=0"`
}

// ObserveConfig configures logging, tracing and metrics.
type ObserveConfig struct {
	ServiceName     string  `mapstructure:"service_name" default:"tokengate" validate:"required"`
	LogLevel        string  `mapstructure:"log_level" default:"info" validate:"oneof=debug info warn error"`
	TracingExporter string  `mapstructure:"tracing_exporter" default:"none" validate:"oneof=otlp jaeger stdout none"`
	SampleRate      float64 `mapstructure:"sample_rate" default:"1" validate:"gte=0,lte=1"`
	MetricsExporter string  `mapstructure:"metrics_exporter" default:"prometheus" validate:"oneof=otlp prometheus stdout none"`
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool { return c.Env == EnvProd }

// JWKSURL returns the configured key set URL or the issuer default.
func (c *Config) JWKSURL() string {
	if c.JWKS.URL != "" {
		return c.JWKS.URL
	}
	return auth.DefaultJWKSURL(c.Auth.Issuer)
}

// VerifierConfig returns the token verifier settings.
func (c *Config) VerifierConfig() auth.VerifierConfig {
	return auth.VerifierConfig{
		Issuer:    c.Auth.Issuer,
		Audience:  c.Auth.Audience,
		Algorithm: c.Auth.Algorithm,
		Leeway:    c.Auth.Leeway,
	}
}

// ObserverConfig returns the telemetry settings for observe.NewObserver.
func (c *Config) ObserverConfig(version string) observe.Config {
	return observe.Config{
		ServiceName: c.Observe.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.TracingExporter != "none",
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SampleRate,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.MetricsExporter != "none",
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Observe.LogLevel,
		},
	}
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("jwtalg", func(fl validator.FieldLevel) bool {
		return slices.Contains(auth.SupportedAlgorithms(), fl.Field().String())
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// String returns the configuration with secret fields redacted.
func (c *Config) String() string {
	var sb strings.Builder
	writeStruct(&sb, reflect.ValueOf(*c), "Config")
	return sb.String()
}

func writeStruct(sb *strings.Builder, v reflect.Value, name string) {
	t := v.Type()
	sb.WriteString(name + "{")
	for i := range t.NumField() {
		field := t.Field(i)
		if i > 0 {
			sb.WriteString(", ")
		}
		fv := v.Field(i)
		switch {
		case field.Tag.Get("secret") == "true":
			if fv.String() == "" {
				sb.WriteString(field.Name + ": ")
			} else {
				sb.WriteString(field.Name + ": ***REDACTED***")
			}
		case fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Time{}):
			writeStruct(sb, fv, field.Name+": ")
		default:
			fmt.Fprintf(sb, "%s: %v", field.Name, fv.Interface())
		}
	}
	sb.WriteString("}")
}
