// Package config loads the gateway configuration from admission-gateway.yaml,
// a .env file and GATEWAY_* environment variables.
package config

import (
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required"`
	UpstreamURL     string        `mapstructure:"upstream_url" validate:"omitempty,url"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	// Prefix namespaces counter keys, e.g. "ratelimit:points:{login:1.2.3.4}".
	Prefix string `mapstructure:"prefix"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Store is the shared counter backend. memory is single-instance only.
	Store       string `mapstructure:"store" validate:"oneof=redis memory"`
	FailureMode string `mapstructure:"failure_mode" validate:"required,oneof=open closed"`
	// GlobalPolicy guards every request; empty disables the global guard.
	GlobalPolicy string        `mapstructure:"global_policy"`
	StoreTimeout time.Duration `mapstructure:"store_timeout" validate:"gte=0"`

	KeyHeader          string `mapstructure:"key_header"`
	TrustXForwardedFor bool   `mapstructure:"trust_x_forwarded_for"`
	// UserIDHeader names a header set by a trusted auth layer in front of
	// the gateway; routes with include_user_id read the user from it.
	UserIDHeader string `mapstructure:"user_id_header"`

	SmoothBurst int `mapstructure:"smooth_burst" validate:"gte=0"`

	PolicyFile string         `mapstructure:"policy_file"`
	Policies   []PolicyConfig `mapstructure:"policies" validate:"omitempty,dive"`
	Routes     []RouteConfig  `mapstructure:"routes" validate:"omitempty,dive"`
}

type PolicyConfig struct {
	Name      string        `mapstructure:"name" validate:"required"`
	Budget    int           `mapstructure:"budget" validate:"gt=0"`
	Window    time.Duration `mapstructure:"window" validate:"gt=0"`
	Block     time.Duration `mapstructure:"block" validate:"gte=0"`
	Namespace string        `mapstructure:"namespace"`
	Smooth    bool          `mapstructure:"smooth"`
}

// RouteConfig binds a policy to a path pattern of the gateway mux.
type RouteConfig struct {
	Method        string `mapstructure:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Path          string `mapstructure:"path" validate:"required,startswith=/"`
	Policy        string `mapstructure:"policy" validate:"required"`
	KeyHeader     string `mapstructure:"key_header"`
	IncludeUserID bool   `mapstructure:"include_user_id"`
}

type ConcurrencyConfig struct {
	Max            int           `mapstructure:"max" validate:"gte=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"gte=0"`
}

type StatsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend" validate:"oneof=redis memory"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Bucket    string        `mapstructure:"bucket" validate:"oneof=minute hour none"`
	TrackKeys bool          `mapstructure:"track_keys"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

type AdminConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Token is the bearer token required on admin routes.
	Token string `mapstructure:"token" validate:"required_if=Enabled true"`
}

// DefaultPolicies is the policy set used when none is configured.
func DefaultPolicies() []domain.Policy {
	return []domain.Policy{
		{Name: "middleware", Budget: 10, Window: time.Second},
		{Name: "strict", Budget: 3, Window: time.Minute, Block: 5 * time.Minute},
		{Name: "login", Budget: 5, Window: time.Minute, Block: 15 * time.Minute},
		{Name: "register", Budget: 3, Window: time.Hour},
		{Name: "api", Budget: 100, Window: time.Minute},
		{Name: "upload", Budget: 10, Window: time.Minute},
		{Name: "admin", Budget: 60, Window: time.Minute},
		{Name: "email", Budget: 1, Window: 10 * time.Minute},
	}
}

// Policies returns the configured policies, falling back to
// DefaultPolicies when none is set. Namespaces default to the name.
func (c *Config) Policies() ([]domain.Policy, error) {
	var out []domain.Policy
	if c.RateLimit.PolicyFile != "" {
		ps, err := ReadPolicyFile(c.RateLimit.PolicyFile)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	for _, p := range c.RateLimit.Policies {
		out = append(out, domain.Policy{
			Name:      p.Name,
			Budget:    p.Budget,
			Window:    p.Window,
			Block:     p.Block,
			Namespace: p.Namespace,
			Smooth:    p.Smooth,
		})
	}
	if len(out) == 0 {
		out = DefaultPolicies()
	}
	for i := range out {
		if out[i].Namespace == "" {
			out[i].Namespace = out[i].Name
		}
	}
	return out, nil
}
