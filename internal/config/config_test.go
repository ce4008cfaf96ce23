package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/jwt.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/jwt.pub.pem")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000", cfg.HTTPPort)
	}
	if cfg.SocketPort != 8001 {
		t.Errorf("SocketPort = %d, want 8001", cfg.SocketPort)
	}
	if cfg.JWTIssuer != "decidr-backend" || cfg.JWTAudience != "decidr-client" {
		t.Errorf("JWT issuer/audience = %s/%s", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Errorf("JWTAccessTTL = %s, want 15m", cfg.JWTAccessTTL)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true with default SERVER_ENV")
	}
}

func TestLoadRequiresKeyPaths(t *testing.T) {
	t.Setenv("JWT_PRIVATE_KEY_PATH", "")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded without key paths")
	}
}

func TestLoadReportsInvalidInteger(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("GATEWAY_SEND_BUFFER", "also-bad")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded with invalid integers")
	}
	// Both bad values are reported in one pass.
	if !strings.Contains(err.Error(), "HTTP_PORT") || !strings.Contains(err.Error(), "GATEWAY_SEND_BUFFER") {
		t.Errorf("error = %v, want both variables mentioned", err)
	}
}

func TestLoadRejectsPortCollision(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("SOCKET_PORT", "9000")

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded with HTTP_PORT == SOCKET_PORT")
	}
}

func TestLoadRejectsFixedOTPInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("DEV_FIXED_OTP", "123456")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted DEV_FIXED_OTP outside development")
	}
}

func TestLoadParsesDurations(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("JWT_REFRESH_TTL", "720h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.JWTAccessTTL != 30*time.Minute {
		t.Errorf("JWTAccessTTL = %s, want 30m", cfg.JWTAccessTTL)
	}
	if cfg.JWTRefreshTTL != 720*time.Hour {
		t.Errorf("JWTRefreshTTL = %s, want 720h", cfg.JWTRefreshTTL)
	}
}
