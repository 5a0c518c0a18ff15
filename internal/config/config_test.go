package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "fleetvoice"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Provider: ProviderConfig{BaseURL: "https://api.example.com", AgentID: "agent_1"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.App.PublicBaseURL = "https://fleetvoice.example.com"
	c.Provider.APIKey = "k"
	c.Provider.WebhookSecret = "s"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.DB.SSLMode = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Dispatch.TickInterval != time.Minute {
		t.Fatalf("expected one minute tick default, got %v", c.Dispatch.TickInterval)
	}
	if c.Dispatch.Workers != 4 {
		t.Fatalf("expected worker default, got %d", c.Dispatch.Workers)
	}
	if c.App.PublicBaseURL == "" {
		t.Fatalf("expected local public base url default")
	}
}

func TestWebhookCallbackURL(t *testing.T) {
	c := validLocal()
	c.App.PublicBaseURL = "https://fleetvoice.example.com"
	got := c.WebhookCallbackURL()
	if got != "https://fleetvoice.example.com/webhooks/voice/completed" {
		t.Fatalf("unexpected callback url %q", got)
	}
}
