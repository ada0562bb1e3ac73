// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

// Package throttle limits how often a single account may attempt a
// password check. Limiters are keyed by the lower-cased mail address.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Limiter decides whether another attempt for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds throttle configuration.
type Config struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps" validate:"gt=0"`
	Burst   int     `mapstructure:"burst" validate:"gte=1"`

	// Redis enables the shared limiter when Addr is set.
	Redis RedisConfig `mapstructure:"redis"`

	KeyPrefix string        `mapstructure:"key_prefix"`
	KeyTTL    time.Duration `mapstructure:"key_ttl" validate:"gte=0"`

	// FailOpen allows attempts when Redis cannot be reached.
	FailOpen bool `mapstructure:"fail_open"`

	// CleanupInterval for removing idle local limiters.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DefaultConfig allows a burst of five attempts, then one every twelve
// seconds.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		RPS:             1.0 / 12,
		Burst:           5,
		KeyPrefix:       "ldapauth:login:",
		KeyTTL:          time.Hour,
		FailOpen:        true,
		CleanupInterval: 5 * time.Minute,
	}
}

var ErrInvalidConfig = errors.New("invalid throttle configuration")

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s=%s", ErrInvalidConfig, verrs[0].Field(), verrs[0].Tag(), verrs[0].Param())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}()

// New returns the limiter described by config. A disabled config yields a
// limiter that always allows. The returned stop function releases
// background resources.
func New(config Config) (Limiter, func() error, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	if !config.Enabled {
		return Unlimited{}, func() error { return nil }, nil
	}
	if config.Redis.Addr != "" {
		l, err := NewRedisLimiter(config)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	}
	l := NewLocalLimiter(config)
	return l, func() error { l.Stop(); return nil }, nil
}

// Key normalizes an account name to a limiter key.
func Key(mail string) string {
	return strings.ToLower(strings.TrimSpace(mail))
}

// Unlimited allows every attempt.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
