package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "admission-gateway"
	envPrefix  = "GATEWAY"
)

// NewViper prepares a viper instance reading configFile (or the first
// admission-gateway.yaml/.yml found in the usual places) with GATEWAY_*
// overrides. A .env file in the working directory is loaded first.
func NewViper(configFile string) *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	// GATEWAY_RATE_LIMIT_FAILURE_MODE overrides rate_limit.failure_mode
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvKeys(v)
	return v
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".admission-gateway"), "/etc/admission-gateway"}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ratelimit")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.store", "redis")
	v.SetDefault("rate_limit.global_policy", "middleware")
	v.SetDefault("rate_limit.store_timeout", 2*time.Second)
	v.SetDefault("rate_limit.smooth_burst", 1)

	v.SetDefault("concurrency.max", 100)
	v.SetDefault("concurrency.acquire_timeout", time.Duration(0))

	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.backend", "redis")
	v.SetDefault("stats.prefix", "ratelimit:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("admin.enabled", false)
}

// keys without a default are invisible to AutomaticEnv during Unmarshal
func bindEnvKeys(v *viper.Viper) {
	for _, k := range []string{
		"server.upstream_url",
		"redis.password",
		"rate_limit.failure_mode",
		"rate_limit.key_header",
		"rate_limit.trust_x_forwarded_for",
		"rate_limit.user_id_header",
		"rate_limit.policy_file",
		"stats.track_keys",
		"admin.token",
	} {
		_ = v.BindEnv(k)
	}
}

// Load reads the config file (optional), applies environment overrides and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
