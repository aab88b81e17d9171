package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/rangeidx"
)

// Config is the effective CLI configuration. Values come from flags,
// RANGEIDX_* environment variables and an optional YAML file, in that
// order of precedence.
type Config struct {
	CacheDir        string            `mapstructure:"cache_dir" yaml:"cache_dir"`
	Threads         int               `mapstructure:"threads" yaml:"threads"`
	Method          string            `mapstructure:"method" yaml:"method"`
	Strict          bool              `mapstructure:"strict" yaml:"strict"`
	BlockCacheBytes int64             `mapstructure:"block_cache_bytes" yaml:"block_cache_bytes"`
	S3Buckets       []string          `mapstructure:"s3_buckets" yaml:"s3_buckets,omitempty"`
	Aliases         map[string]string `mapstructure:"aliases" yaml:"aliases,omitempty"`
	MinIO           MinIOConfig       `mapstructure:"minio" yaml:"minio,omitempty"`
	Log             LogConfig         `mapstructure:"log" yaml:"log"`
}

// MinIOConfig mounts buckets of an S3-compatible endpoint as
// minio://<bucket>/. The secret key is never printed.
type MinIOConfig struct {
	Endpoint  string   `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKey string   `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string   `mapstructure:"secret_key" yaml:"-"`
	Secure    bool     `mapstructure:"secure" yaml:"secure,omitempty"`
	Buckets   []string `mapstructure:"buckets" yaml:"buckets,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"cache-dir":    "cache_dir",
	"threads":      "threads",
	"method":       "method",
	"strict":       "strict",
	"block-cache":  "block_cache_bytes",
	"s3-bucket":    "s3_buckets",
	"minio":        "minio.endpoint",
	"minio-bucket": "minio.buckets",
	"minio-secure": "minio.secure",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("RANGEIDX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, err
		}
	}
	// Credentials have no flags; bind them so the environment is seen.
	for _, key := range []string{"minio.access_key", "minio.secret_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	file, _ := cmd.Flags().GetString("config")
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("rangeidx")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the CLI logger. With a log file, records go to stderr
// and, as JSON, to the file.
func newLogger(cfg LogConfig) (*rangeidx.Logger, func() error, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	closeFn := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, opts))
		closeFn = f.Close
	}
	return rangeidx.NewLogger(handler), closeFn, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
