package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is everything authcoded needs to start.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	ExtraParams  map[string]string

	Address string

	RedisAddr    string
	RedisPrefix  string
	SessionTTL   time.Duration
	CookieSecure bool

	LogLevel string
}

// LoadConfig reads a Config out of v.
func LoadConfig(v *viper.Viper) Config {
	return Config{
		Issuer:       v.GetString("issuer"),
		ClientID:     v.GetString("client-id"),
		ClientSecret: v.GetString("client-secret"),
		CallbackURL:  v.GetString("callback-url"),
		Scopes:       v.GetStringSlice("scope"),
		ExtraParams:  v.GetStringMapString("extra-param"),
		Address:      v.GetString("address"),
		RedisAddr:    v.GetString("redis-addr"),
		RedisPrefix:  v.GetString("redis-prefix"),
		SessionTTL:   v.GetDuration("session-ttl"),
		CookieSecure: v.GetBool("cookie-secure"),
		LogLevel:     strings.ToUpper(v.GetString("log-level")),
	}
}

var validLogLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR"}

// Validate reports the first problem that would stop authcoded from serving.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}
	if c.ClientID == "" {
		return errors.New("client-id is required")
	}
	if c.CallbackURL == "" {
		return errors.New("callback-url is required")
	}
	if c.Address == "" {
		return errors.New("address is required")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session-ttl must not be negative, got %s", c.SessionTTL)
	}
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			return nil
		}
	}
	return fmt.Errorf("log-level must be one of %s, got %q", strings.Join(validLogLevels, ", "), c.LogLevel)
}
