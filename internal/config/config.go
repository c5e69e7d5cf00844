package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// SelfIdentity is the caller identity treated as the app itself.
	SelfIdentity string `mapstructure:"self_identity"`

	SocketPath string `mapstructure:"socket_path"`
	HTTPAddr   string `mapstructure:"http_addr"` // optional TCP listener, dev only
	GRPCAddr   string `mapstructure:"grpc_addr"` // optional health endpoint

	// DB
	Env    string `mapstructure:"env"` // "dev" | "prod"
	DBPath string `mapstructure:"db_path"`

	CacheDir string `mapstructure:"cache_dir"`

	Platform      PlatformConfig `mapstructure:"platform"`
	Notifications Notifications  `mapstructure:"notifications"`
	Log           LogConfig      `mapstructure:"log"`

	PreapprovedCallers []string `mapstructure:"preapproved_callers"`
	LaneQueueSize      int      `mapstructure:"lane_queue_size"`
}

type PlatformConfig struct {
	Kind        string   `mapstructure:"kind"` // "file" | "gnome"
	LockPath    string   `mapstructure:"lock_path"`
	HomePath    string   `mapstructure:"home_path"`
	DefaultPath string   `mapstructure:"default_path"`
	Triggers    []string `mapstructure:"triggers"`
}

type Notifications struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"` // rotated JSON log, optional
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads prismd.toml (explicit path, or the first one found in
// $XDG_CONFIG_HOME/prismd and the working directory) and applies PRISM_*
// environment overrides. A missing config file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("prismd")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "prismd"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PRISM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg)
	return cfg, validate(cfg)
}

func setDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}

	v.SetDefault("self_identity", "io.prismwall.prismd")
	v.SetDefault("socket_path", filepath.Join(runtimeDir, "prismd.sock"))
	v.SetDefault("http_addr", "")
	v.SetDefault("grpc_addr", "")
	v.SetDefault("env", "prod")
	v.SetDefault("db_path", filepath.Join(dataDir, "prism.db"))
	v.SetDefault("cache_dir", filepath.Join(dataDir, "cache"))
	v.SetDefault("platform.kind", "file")
	v.SetDefault("platform.lock_path", "")
	v.SetDefault("platform.home_path", "")
	v.SetDefault("platform.default_path", "")
	v.SetDefault("platform.triggers", []string{})
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 2)
	v.SetDefault("preapproved_callers", []string{})
	v.SetDefault("lane_queue_size", 256)
}

func defaultDataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "prismd")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "prismd")
	}
	return "./data"
}

func normalize(cfg *Config) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as prod
		cfg.Env = "prod"
	}
	cfg.Platform.Kind = strings.ToLower(strings.TrimSpace(cfg.Platform.Kind))
	cfg.SelfIdentity = strings.TrimSpace(cfg.SelfIdentity)
	cfg.PreapprovedCallers = splitCSV(cfg.PreapprovedCallers)
	cfg.Platform.Triggers = splitCSV(cfg.Platform.Triggers)
	if cfg.LaneQueueSize <= 0 {
		cfg.LaneQueueSize = 256
	}
}

func validate(cfg Config) error {
	if cfg.SelfIdentity == "" {
		return errors.New("config: self_identity is required")
	}
	switch cfg.Platform.Kind {
	case "file", "gnome":
	default:
		return fmt.Errorf("config: unknown platform.kind %q", cfg.Platform.Kind)
	}
	if cfg.SocketPath == "" && cfg.HTTPAddr == "" {
		return errors.New("config: one of socket_path or http_addr is required")
	}
	return nil
}

// splitCSV flattens list values that arrive as a single comma-separated
// string from the environment.
func splitCSV(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
