package config

import (
	"errors"
	"fmt"
	"strings"

	"admission-gateway/middleware/ratelimit/application"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and cross-field rules. Policies are checked
// the same way the registry will check them at startup.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.usesRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when the redis store or stats backend is used")
	}

	policies, err := c.Policies()
	if err != nil {
		return err
	}
	reg, err := application.NewRegistry(policies...)
	if err != nil {
		return err
	}
	if c.RateLimit.GlobalPolicy != "" {
		if _, err := reg.Resolve(c.RateLimit.GlobalPolicy); err != nil {
			return fmt.Errorf("rate_limit.global_policy: %w", err)
		}
	}
	for i, rt := range c.RateLimit.Routes {
		if _, err := reg.Resolve(rt.Policy); err != nil {
			return fmt.Errorf("rate_limit.routes[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) usesRedis() bool {
	return (c.RateLimit.Enabled && c.RateLimit.Store == "redis") ||
		(c.Stats.Enabled && c.Stats.Backend == "redis")
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gt", "gte":
		return fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
