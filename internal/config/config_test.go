package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SUBPAY_POSTGRES_USER", "subpay")
	t.Setenv("SUBPAY_POSTGRES_HOST", "localhost")
	t.Setenv("SUBPAY_POSTGRES_DB", "subpay")
	t.Setenv("SUBPAY_REDIS_HOST", "localhost")
	t.Setenv("SUBPAY_ADMIN_TOKEN", "secret")
	t.Setenv("SUBPAY_CHECKOUT_SECRET_KEY", "sk")
	t.Setenv("SUBPAY_CHECKOUT_WEBHOOK_SECRET", "whsec")
	t.Setenv("SUBPAY_COINPAY_PUBLIC_KEY", "pub")
	t.Setenv("SUBPAY_COINPAY_PRIVATE_KEY", "priv")
}

func TestNewDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.ApiAddr() != ":8080" {
		t.Fatalf("unexpected api addr %q", cfg.ApiAddr())
	}
	if cfg.DSN() != "postgres://subpay:@localhost:5432/subpay?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", cfg.DSN())
	}
	if cfg.NatsAddr() != "" {
		t.Fatalf("expected empty nats addr when unset, got %q", cfg.NatsAddr())
	}
}

func TestNewMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("SUBPAY_ADMIN_TOKEN", "")

	if _, err := New(); err == nil {
		t.Fatal("expected error without admin token")
	}
}

func TestNatsAddr(t *testing.T) {
	setRequired(t)
	t.Setenv("SUBPAY_NATS_HOST", "nats.internal")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.NatsAddr() != "nats://nats.internal:4222" {
		t.Fatalf("unexpected nats addr %q", cfg.NatsAddr())
	}
}
