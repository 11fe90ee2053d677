// Package config loads the configuration of the sponsorpay service from an
// optional .env file, an optional YAML file, and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/andrewpillar/sponsorpay"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables that override the
// configuration, for example SPONSORPAY_STRIPE_CLIENTID.
const EnvPrefix = "SPONSORPAY"

type Stripe struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`

	// SecretKey is the platform's API key, this defaults to ClientSecret.
	SecretKey  string `mapstructure:"secretKey"`
	APIURL     string `mapstructure:"apiUrl"`
	ConnectURL string `mapstructure:"connectUrl"`
}

type Square struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
	BaseURL      string `mapstructure:"baseUrl"`
	Version      string `mapstructure:"version"`
}

type Notify struct {
	WebhookURL string `mapstructure:"webhookUrl"`
	Workers    int    `mapstructure:"workers"`
	QueueSize  int    `mapstructure:"queueSize"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Otel struct {
	Endpoint string `mapstructure:"endpoint"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Config is the configuration of the service.
type Config struct {
	// PlatformFeePercent is kept as a string so it is parsed exactly, a YAML
	// number such as 2.9 is decoded into "2.9".
	PlatformFeePercent string        `mapstructure:"platformFeePercent"`
	Environment        string        `mapstructure:"environment"`
	FrontendURL        string        `mapstructure:"frontendUrl"`
	RedirectBaseURL    string        `mapstructure:"redirectBaseUrl"`
	StateSecret        string        `mapstructure:"stateSecret"`
	ProviderTimeout    time.Duration `mapstructure:"providerTimeout"`

	Stripe   Stripe   `mapstructure:"stripe"`
	Square   Square   `mapstructure:"square"`
	Notify   Notify   `mapstructure:"notify"`
	Database Database `mapstructure:"database"`
	HTTP     HTTP     `mapstructure:"http"`
	Otel     Otel     `mapstructure:"otel"`
	Log      Log      `mapstructure:"log"`

	feeRate sponsorpay.FeeRate
}

var defaults = map[string]interface{}{
	"platformFeePercent":  "0",
	"environment":         string(sponsorpay.Sandbox),
	"frontendUrl":         "http://localhost:3000",
	"redirectBaseUrl":     "",
	"stateSecret":         "",
	"providerTimeout":     sponsorpay.DefaultProviderTimeout,
	"stripe.clientId":     "",
	"stripe.clientSecret": "",
	"stripe.secretKey":    "",
	"stripe.apiUrl":       "",
	"stripe.connectUrl":   "",
	"square.clientId":     "",
	"square.clientSecret": "",
	"square.baseUrl":      "",
	"square.version":      sponsorpay.SquareVersion,
	"notify.webhookUrl":   "",
	"notify.workers":      4,
	"notify.queueSize":    100,
	"database.driver":     "sqlite3",
	"database.dsn":        "sponsorpay.db",
	"http.addr":           ":8080",
	"otel.endpoint":       "",
	"log.level":           "info",
}

// Load loads the configuration. A .env file in the working directory is
// loaded into the environment first if it exists, then the YAML file at the
// given path is read if a path is given. Environment variables take
// precedence over both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, filling in the values that are derived
// from others.
func (c *Config) Validate() error {
	switch sponsorpay.Environment(c.Environment) {
	case sponsorpay.Sandbox, sponsorpay.Production:
	default:
		return fmt.Errorf("%w: unknown environment %q", sponsorpay.ErrConfiguration, c.Environment)
	}

	rate, err := sponsorpay.ParseFeeRate(c.PlatformFeePercent)

	if err != nil {
		return fmt.Errorf("%w: platformFeePercent: %s", sponsorpay.ErrConfiguration, err)
	}

	c.feeRate = rate

	if c.Stripe.SecretKey == "" {
		c.Stripe.SecretKey = c.Stripe.ClientSecret
	}

	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = sponsorpay.DefaultProviderTimeout
	}

	if c.Notify.Workers < 1 {
		c.Notify.Workers = 1
	}

	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("%w: notify.queueSize must be positive", sponsorpay.ErrConfiguration)
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", sponsorpay.ErrConfiguration, c.Database.Driver)
	}

	c.FrontendURL = strings.TrimSuffix(c.FrontendURL, "/")
	return nil
}

// Payments returns the configuration of the payment flows.
func (c *Config) Payments() sponsorpay.Config {
	return sponsorpay.Config{
		PlatformFeePercent: c.feeRate,
		Environment:        sponsorpay.Environment(c.Environment),
		Stripe: sponsorpay.StripeConfig{
			ClientID:   c.Stripe.ClientID,
			SecretKey:  c.Stripe.SecretKey,
			APIURL:     c.Stripe.APIURL,
			ConnectURL: c.Stripe.ConnectURL,
		},
		Square: sponsorpay.SquareConfig{
			ClientID:     c.Square.ClientID,
			ClientSecret: c.Square.ClientSecret,
			BaseURL:      c.Square.BaseURL,
			Version:      c.Square.Version,
		},
		RedirectBaseURL: c.RedirectBaseURL,
		StateSecret:     []byte(c.StateSecret),
		ProviderTimeout: c.ProviderTimeout,
	}
}
