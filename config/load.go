package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonwraymond/tokengate/secret"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TOKENGATE"

type loadOptions struct {
	envFiles []string
	resolver *secret.Resolver
}

// Option configures Load.
type Option func(*loadOptions)

// WithEnvFiles loads the given dotenv files instead of ./.env. Missing
// files are skipped. Variables already set in the environment win.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) { o.envFiles = files }
}

// WithResolver resolves secret references with r instead of the env and
// file providers of secret.DefaultRegistry.
func WithResolver(r *secret.Resolver) Option {
	return func(o *loadOptions) { o.resolver = r }
}

// Load reads the configuration. path names a YAML file; when empty,
// tokengate.yaml is looked up in . and ./config and may be absent.
func Load(ctx context.Context, path string, opts ...Option) (*Config, error) {
	o := loadOptions{envFiles: []string{".env"}}
	for _, opt := range opts {
		opt(&o)
	}

	for _, f := range o.envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: set defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys(reflect.TypeOf(*cfg), "") {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tokengate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	resolver := o.resolver
	if resolver == nil {
		var err error
		resolver, err = secret.DefaultRegistry.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defer func() { _ = resolver.Close() }()
	}
	if err := resolver.ResolveStruct(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.JWKS.URL = cfg.JWKSURL()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// keys lists the dotted mapstructure keys of every leaf field of t.
func keys(t reflect.Type, prefix string) []string {
	var out []string
	for i := range t.NumField() {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		if field.Type.Kind() == reflect.Struct {
			out = append(out, keys(field.Type, prefix+name+".")...)
			continue
		}
		out = append(out, prefix+name)
	}
	return out
}
