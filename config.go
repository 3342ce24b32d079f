package mongo

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const EnvPrefix = "MONGO_"

// Config is read from MONGO_* environment variables, e.g. MONGO_URI,
// MONGO_AUTO_TRANSACTION=never, MONGO_MAX_COMMIT_TIME=5s.
type Config struct {
	URI             string        `koanf:"uri" validate:"required"`
	Database        string        `koanf:"database" validate:"required"`
	AutoTransaction string        `koanf:"auto_transaction" validate:"oneof=when_needed always never"`
	ReadConcern     string        `koanf:"read_concern" validate:"omitempty,oneof=local available majority linearizable snapshot"`
	WriteConcern    string        `koanf:"write_concern"`
	MaxCommitTime   time.Duration `koanf:"max_commit_time" validate:"gte=0"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogJSON         bool          `koanf:"log_json"`
}

func DefaultConfig() Config {
	return Config{
		AutoTransaction: AutoTransactionsWhenNeeded.String(),
		ConnectTimeout:  10 * time.Second,
		LogLevel:        "info",
	}
}

type loadOptions struct {
	environ func() []string
	over    map[string]any
}

type LoadOption func(o *loadOptions)

// WithEnviron replaces os.Environ as the source of variables.
func WithEnviron(fn func() []string) LoadOption {
	return func(o *loadOptions) { o.environ = fn }
}

// WithOverrides sets keys (koanf names such as "uri") after the environment was read.
func WithOverrides(values map[string]any) LoadOption {
	return func(o *loadOptions) { o.over = values }
}

// LoadConfig layers defaults, MONGO_* variables and overrides, then validates the result.
func LoadConfig(opts ...LoadOption) (Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, "load defaults")
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
		EnvironFunc: o.environ,
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "load environment")
	}

	for key, v := range o.over {
		if err := k.Set(key, v); err != nil {
			return Config{}, errors.Wrapf(err, "set %s", key)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg.AutoTransaction = strings.ReplaceAll(strings.ToLower(cfg.AutoTransaction), "-", "_")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return cfg, nil
}

func (c Config) Policy() AutoTransactionPolicy {
	p, _ := ParseAutoTransactionPolicy(c.AutoTransaction)
	return p
}

func (c Config) TxnOptions() TxnOptions {
	return TxnOptions{
		ReadConcern:   c.ReadConcern,
		WriteConcern:  c.WriteConcern,
		MaxCommitTime: c.MaxCommitTime,
	}
}

func (c Config) Logger(out io.Writer) Logger {
	return NewLogger(LoggerConfig{Level: c.LogLevel, JSON: c.LogJSON, Output: out})
}

// Open connects to cfg.URI within cfg.ConnectTimeout. Sessions of the returned
// database start with the configured policy and transaction options; opts
// given here take precedence over the config.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Database, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	all := append([]Option{
		WithSessionDefaults(WithPolicy(cfg.Policy()), WithTxnOptions(cfg.TxnOptions())),
	}, opts...)
	return NewDatabase(ctx, cfg.URI, cfg.Database, all...)
}
