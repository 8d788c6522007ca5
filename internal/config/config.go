package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

type PathsConfig struct {
	VocabPath  string `mapstructure:"vocab_path"`
	MergesPath string `mapstructure:"merges_path"`
}

type TokenizerConfig struct {
	Errors        string `mapstructure:"errors"`
	MaxLen        int    `mapstructure:"max_len"`
	CacheSize     int    `mapstructure:"cache_size"`
	Pretokenizer  string `mapstructure:"pretokenizer"`
	Normalization string `mapstructure:"normalization"`
	MergesTrailer string `mapstructure:"merges_trailer"`
	RequireHeader bool   `mapstructure:"require_header"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
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
		Paths: PathsConfig{
			VocabPath:  "models/vocab.json",
			MergesPath: "models/merges.txt",
		},
		Tokenizer: TokenizerConfig{
			Errors:        "replace",
			MaxLen:        1024,
			CacheSize:     0,
			Pretokenizer:  PretokenizerScanner,
			Normalization: "none",
			MergesTrailer: TrailerKeep,
			RequireHeader: false,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    65536,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-vocab-path", defaults.Paths.VocabPath, "Path to vocab.json (optionally .gz)")
	fs.String("paths-merges-path", defaults.Paths.MergesPath, "Path to merges.txt (optionally .gz)")
	fs.String("errors", defaults.Tokenizer.Errors, "Invalid UTF-8 handling on decode: strict|replace|ignore")
	fs.Int("max-len", defaults.Tokenizer.MaxLen, "Advisory maximum id sequence length (0 disables the warning)")
	fs.Int("cache-size", defaults.Tokenizer.CacheSize, "Merge cache entries (0 unbounded, <0 disabled)")
	fs.String("pretokenizer", defaults.Tokenizer.Pretokenizer, "Pretokenizer implementation: scanner|regex")
	fs.String("normalization", defaults.Tokenizer.Normalization, "Unicode normalization before splitting: none|nfc|nfkc")
	fs.String("merges-trailer", defaults.Tokenizer.MergesTrailer, "Handling of the final merges line: keep|require|drop")
	fs.Bool("require-header", defaults.Tokenizer.RequireHeader, "Reject merges files without a #version header")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent tokenization requests")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max request text size in bytes")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

// flagKeys maps each registered flag to its config key.
var flagKeys = []struct{ flag, key string }{
	{"paths-vocab-path", "paths.vocab_path"},
	{"paths-merges-path", "paths.merges_path"},
	{"errors", "tokenizer.errors"},
	{"max-len", "tokenizer.max_len"},
	{"cache-size", "tokenizer.cache_size"},
	{"pretokenizer", "tokenizer.pretokenizer"},
	{"normalization", "tokenizer.normalization"},
	{"merges-trailer", "tokenizer.merges_trailer"},
	{"require-header", "tokenizer.require_header"},
	{"server-listen-addr", "server.listen_addr"},
	{"workers", "server.workers"},
	{"max-text-bytes", "server.max_text_bytes"},
	{"request-timeout", "server.request_timeout"},
	{"shutdown-timeout", "server.shutdown_timeout"},
	{"log-level", "log_level"},
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("BPETOK")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("bpetok")
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

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Tokenizer.Pretokenizer, err = NormalizePretokenizer(c.Tokenizer.Pretokenizer); err != nil {
		return err
	}
	if c.Tokenizer.MergesTrailer, err = NormalizeTrailer(c.Tokenizer.MergesTrailer); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("paths.merges_path", c.Paths.MergesPath)
	v.SetDefault("tokenizer.errors", c.Tokenizer.Errors)
	v.SetDefault("tokenizer.max_len", c.Tokenizer.MaxLen)
	v.SetDefault("tokenizer.cache_size", c.Tokenizer.CacheSize)
	v.SetDefault("tokenizer.pretokenizer", c.Tokenizer.Pretokenizer)
	v.SetDefault("tokenizer.normalization", c.Tokenizer.Normalization)
	v.SetDefault("tokenizer.merges_trailer", c.Tokenizer.MergesTrailer)
	v.SetDefault("tokenizer.require_header", c.Tokenizer.RequireHeader)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

// bindFlags binds flags by key rather than through aliases so that an
// unchanged flag never shadows a value from the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", fk.flag, err)
		}
	}
	return nil
}
