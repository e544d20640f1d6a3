package config

import (
	"errors"
	"net/netip"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KINSHIP_ENV", EnvDevelopment)
	t.Setenv("KINSHIP_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppPort != 8080 {
		t.Fatalf("expected default port 8080 got %d", cfg.AppPort)
	}
	if !cfg.PrettyPermalinks {
		t.Fatal("expected pretty permalinks to be enabled by default")
	}
	if cfg.ProfileUpdateThrottle != 2*time.Hour {
		t.Fatalf("expected 2h profile throttle got %v", cfg.ProfileUpdateThrottle)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("expected redis to be disabled by default got %q", cfg.Redis.Addr)
	}
	if cfg.JWTSecret != devJWTSecret {
		t.Fatalf("expected development jwt secret got %q", cfg.JWTSecret)
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies by default got %v", cfg.TrustedProxies)
	}
}

func TestLoadRequiresJWTSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("KINSHIP_JWT_SECRET", "")

	for _, env := range []string{"", EnvProduction, "staging"} {
		t.Setenv("KINSHIP_ENV", env)
		if _, err := Load(); !errors.Is(err, ErrMissingJWTSecret) {
			t.Fatalf("env %q: expected ErrMissingJWTSecret got %v", env, err)
		}
	}

	t.Setenv("KINSHIP_ENV", "TEST")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != EnvTest || cfg.JWTSecret != devJWTSecret {
		t.Fatalf("unexpected env %q secret %q", cfg.Env, cfg.JWTSecret)
	}

	t.Setenv("KINSHIP_ENV", EnvProduction)
	t.Setenv("KINSHIP_JWT_SECRET", "s3cr3t")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTSecret != "s3cr3t" {
		t.Fatalf("expected configured secret got %q", cfg.JWTSecret)
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("KINSHIP_JWT_SECRET", "s3cr3t")
	t.Setenv("KINSHIP_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7 ,fd00::1/64")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("fd00::/64"),
	}
	if len(cfg.TrustedProxies) != len(want) {
		t.Fatalf("expected %v got %v", want, cfg.TrustedProxies)
	}
	for i := range want {
		if cfg.TrustedProxies[i] != want[i] {
			t.Fatalf("expected %v got %v", want, cfg.TrustedProxies)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KINSHIP_JWT_SECRET", "s3cr3t")
	t.Setenv("KINSHIP_PORT", "9090")
	t.Setenv("KINSHIP_HOME_URL", "https://example.com/community/")
	t.Setenv("KINSHIP_PRETTY_PERMALINKS", "false")
	t.Setenv("KINSHIP_ACCESS_TTL", "5m")
	t.Setenv("KINSHIP_RATE_LIMIT_BURST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppPort != 9090 {
		t.Fatalf("expected port 9090 got %d", cfg.AppPort)
	}
	if cfg.HomeURL != "https://example.com/community" {
		t.Fatalf("expected trailing slash to be trimmed got %q", cfg.HomeURL)
	}
	if cfg.PrettyPermalinks {
		t.Fatal("expected pretty permalinks to be disabled")
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("expected access ttl 5m got %v", cfg.AccessTTL)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Fatalf("expected malformed burst to fall back to 5 got %d", cfg.RateLimit.Burst)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"badBool", "KINSHIP_PRETTY_PERMALINKS", "sometimes"},
		{"relativeHome", "KINSHIP_HOME_URL", "/community"},
		{"badProxy", "KINSHIP_TRUSTED_PROXIES", "10.0.0.0/8,not-an-ip"},
	}
	t.Setenv("KINSHIP_JWT_SECRET", "s3cr3t")

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}
