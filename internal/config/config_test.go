package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrewpillar/sponsorpay"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "sponsorpay.yaml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func Test_LoadDefaults(t *testing.T) {
	cfg, err := Load("")

	if err != nil {
		t.Fatal(err)
	}

	if cfg.Environment != "sandbox" {
		t.Errorf("unexpected environment, expected=%q, got=%q\n", "sandbox", cfg.Environment)
	}

	if cfg.ProviderTimeout != sponsorpay.DefaultProviderTimeout {
		t.Errorf("unexpected provider timeout, expected=%s, got=%s\n", sponsorpay.DefaultProviderTimeout, cfg.ProviderTimeout)
	}

	if cfg.HTTP.Addr != ":8080" || cfg.Database.Driver != "sqlite3" {
		t.Errorf("unexpected defaults %+v\n", cfg)
	}

	if p := cfg.Payments(); p.PlatformFeePercent != 0 {
		t.Errorf("expected no platform fee, got=%s\n", p.PlatformFeePercent)
	}
}

func Test_LoadFile(t *testing.T) {
	path := writeConfig(t, `platformFeePercent: 2.9
environment: production
frontendUrl: https://sponsor.example.com/
providerTimeout: 5s
stripe:
  clientId: ca_123
  clientSecret: sk_live_123
square:
  clientId: sq0idp-123
  clientSecret: sq0csp-123
notify:
  workers: 2
  queueSize: 10
database:
  driver: postgres
  dsn: postgres://localhost/sponsorpay
`)

	cfg, err := Load(path)

	if err != nil {
		t.Fatal(err)
	}

	if cfg.FrontendURL != "https://sponsor.example.com" {
		t.Errorf("unexpected frontend url %q\n", cfg.FrontendURL)
	}

	p := cfg.Payments()

	if p.PlatformFeePercent != 29000 {
		t.Errorf("unexpected fee rate, expected=%d, got=%d\n", 29000, p.PlatformFeePercent)
	}

	if p.Environment != sponsorpay.Production {
		t.Errorf("unexpected environment %q\n", p.Environment)
	}

	if p.Stripe.SecretKey != "sk_live_123" {
		t.Errorf("expected secret key to default to client secret, got=%q\n", p.Stripe.SecretKey)
	}

	if p.ProviderTimeout != 5*time.Second {
		t.Errorf("unexpected provider timeout %s\n", p.ProviderTimeout)
	}

	if p.Square.ClientID != "sq0idp-123" || p.Square.Version != sponsorpay.SquareVersion {
		t.Errorf("unexpected square config %+v\n", p.Square)
	}
}

func Test_LoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `platformFeePercent: 5
stripe:
  clientId: ca_file
`)

	t.Setenv("SPONSORPAY_STRIPE_CLIENTID", "ca_env")
	t.Setenv("SPONSORPAY_STRIPE_SECRETKEY", "sk_test_env")
	t.Setenv("SPONSORPAY_HTTP_ADDR", ":9090")

	cfg, err := Load(path)

	if err != nil {
		t.Fatal(err)
	}

	if cfg.Stripe.ClientID != "ca_env" || cfg.Stripe.SecretKey != "sk_test_env" {
		t.Errorf("expected environment to override file, got=%+v\n", cfg.Stripe)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("unexpected http addr %q\n", cfg.HTTP.Addr)
	}

	if cfg.Payments().PlatformFeePercent != 50000 {
		t.Errorf("unexpected fee rate %d\n", cfg.Payments().PlatformFeePercent)
	}
}

func Test_LoadInvalid(t *testing.T) {
	tests := []string{
		"environment: staging\n",
		"platformFeePercent: 101\n",
		"platformFeePercent: -1\n",
		"platformFeePercent: abc\n",
		"database:\n  driver: mysql\n",
		"notify:\n  queueSize: 0\n",
	}

	for i, test := range tests {
		_, err := Load(writeConfig(t, test))

		if !errors.Is(err, sponsorpay.ErrConfiguration) {
			t.Errorf("tests[%d] - expected ErrConfiguration, got=%v\n", i, err)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing config file\n")
	}
}
