// Package config loads quill settings from defaults, an optional config file,
// QUILL_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/23skdu/longbow-quill/internal/encoding/tokenizer"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Encoder  EncoderConfig `mapstructure:"encoder"`
	Server   ServerConfig  `mapstructure:"server"`
	Forward  ForwardConfig `mapstructure:"forward"`
	Tracing  bool          `mapstructure:"tracing"`
}

type EncoderConfig struct {
	Language       string   `mapstructure:"language"`
	Backend        string   `mapstructure:"backend"`
	ModelDir       string   `mapstructure:"model_dir"`
	Languages      []string `mapstructure:"languages"`
	Vocab          string   `mapstructure:"vocab"`
	MinOccurrences int      `mapstructure:"min_occurrences"`
	AppendEOS      bool     `mapstructure:"append_eos"`
	ReservedTokens []string `mapstructure:"reserved_tokens"`
	Workers        int      `mapstructure:"workers"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	FlightAddr      string `mapstructure:"flight_addr"`
	MaxConcurrent   int64  `mapstructure:"max_concurrent"`
	CacheEntries    int    `mapstructure:"cache_entries"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type ForwardConfig struct {
	Addr        string `mapstructure:"addr"`
	Dataset     string `mapstructure:"dataset"`
	MaxFailures int    `mapstructure:"max_failures"`
	Cooldown    int    `mapstructure:"cooldown"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Encoder: EncoderConfig{
			Language:       "en",
			Backend:        tokenizer.DefaultBackend,
			ModelDir:       "",
			Languages:      append([]string(nil), tokenizer.DefaultLanguages...),
			Vocab:          "vocab.cbor",
			MinOccurrences: 1,
			AppendEOS:      false,
			Workers:        -1,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			FlightAddr:      "",
			MaxConcurrent:   16384,
			CacheEntries:    100000,
			ShutdownTimeout: 15,
		},
		Forward: ForwardConfig{
			Addr:        "",
			Dataset:     "quill_dataset",
			MaxFailures: 5,
			Cooldown:    30,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (trace, debug, info, warn, error)")
	fs.String("encoder-language", defaults.Encoder.Language, "Tokenizer language code")
	fs.StringP("lang", "l", defaults.Encoder.Language, "Tokenizer language code (alias for --encoder-language)")
	fs.String("encoder-backend", defaults.Encoder.Backend, "Tokenizer backend (rules, wordpiece, sentencepiece, hf)")
	fs.String("encoder-model-dir", defaults.Encoder.ModelDir, "Directory searched for installed language models")
	fs.StringSlice("encoder-languages", defaults.Encoder.Languages, "Supported language codes")
	fs.String("encoder-vocab", defaults.Encoder.Vocab, "Vocabulary snapshot file")
	fs.Int("encoder-min-occurrences", defaults.Encoder.MinOccurrences, "Minimum sample count for a token to enter the vocabulary")
	fs.Bool("encoder-append-eos", defaults.Encoder.AppendEOS, "Append the end-of-sequence index to every vector")
	fs.StringSlice("encoder-reserved-tokens", defaults.Encoder.ReservedTokens, "Reserved tokens (default <pad> <unk> </s> <s> <copy>)")
	fs.Int("encoder-workers", defaults.Encoder.Workers, "Batch tokenization workers (<= 0 uses every CPU)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.String("server-flight-addr", defaults.Server.FlightAddr, "Arrow Flight listen address (empty disables)")
	fs.Int64("server-max-concurrent", defaults.Server.MaxConcurrent, "Maximum number of sequences encoded concurrently")
	fs.Int("server-cache-entries", defaults.Server.CacheEntries, "Encoded vector cache capacity (0 disables)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("forward-addr", defaults.Forward.Addr, "Longbow Flight address to forward encoded batches to")
	fs.String("forward-dataset", defaults.Forward.Dataset, "Target dataset name on the Longbow server")
	fs.Int("forward-max-failures", defaults.Forward.MaxFailures, "Consecutive forward failures before the circuit opens")
	fs.Int("forward-cooldown", defaults.Forward.Cooldown, "Seconds before an open circuit is probed again")
	fs.Bool("tracing", defaults.Tracing, "Enable OpenTelemetry tracing (stdout)")
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":               "log_level",
	"encoder-language":        "encoder.language",
	"encoder-backend":         "encoder.backend",
	"encoder-model-dir":       "encoder.model_dir",
	"encoder-languages":       "encoder.languages",
	"encoder-vocab":           "encoder.vocab",
	"encoder-min-occurrences": "encoder.min_occurrences",
	"encoder-append-eos":      "encoder.append_eos",
	"encoder-reserved-tokens": "encoder.reserved_tokens",
	"encoder-workers":         "encoder.workers",
	"server-listen-addr":      "server.listen_addr",
	"server-flight-addr":      "server.flight_addr",
	"server-max-concurrent":   "server.max_concurrent",
	"server-cache-entries":    "server.cache_entries",
	"server-shutdown-timeout": "server.shutdown_timeout",
	"forward-addr":            "forward.addr",
	"forward-dataset":         "forward.dataset",
	"forward-max-failures":    "forward.max_failures",
	"forward-cooldown":        "forward.cooldown",
	"tracing":                 "tracing",
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("quill")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// bindFlags binds every known flag present in fs to its nested key. A bound
// flag only overrides file and environment values when it was set.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	if f := fs.Lookup("lang"); f != nil && f.Changed {
		v.Set("encoder.language", f.Value.String())
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("encoder.language", c.Encoder.Language)
	v.SetDefault("encoder.backend", c.Encoder.Backend)
	v.SetDefault("encoder.model_dir", c.Encoder.ModelDir)
	v.SetDefault("encoder.languages", c.Encoder.Languages)
	v.SetDefault("encoder.vocab", c.Encoder.Vocab)
	v.SetDefault("encoder.min_occurrences", c.Encoder.MinOccurrences)
	v.SetDefault("encoder.append_eos", c.Encoder.AppendEOS)
	v.SetDefault("encoder.reserved_tokens", c.Encoder.ReservedTokens)
	v.SetDefault("encoder.workers", c.Encoder.Workers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.flight_addr", c.Server.FlightAddr)
	v.SetDefault("server.max_concurrent", c.Server.MaxConcurrent)
	v.SetDefault("server.cache_entries", c.Server.CacheEntries)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("forward.addr", c.Forward.Addr)
	v.SetDefault("forward.dataset", c.Forward.Dataset)
	v.SetDefault("forward.max_failures", c.Forward.MaxFailures)
	v.SetDefault("forward.cooldown", c.Forward.Cooldown)
	v.SetDefault("tracing", c.Tracing)
}
