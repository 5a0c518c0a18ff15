package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Dispatch DispatchConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable base URL of this service.
	// The telephony provider posts completion webhooks to
	// {PublicBaseURL}/webhooks/voice/completed.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens on the intake and read APIs.
	// Token issuance lives in a separate identity service; this process
	// only validates.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// ProviderConfig configures the conversational-AI telephony provider.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	// AgentID identifies the configured voice agent at the provider.
	AgentID string
	// AgentPhoneNumberID identifies the provider-side outbound number.
	AgentPhoneNumberID string
	// WebhookSecret, when set, must match the shared-secret header on
	// inbound completion webhooks. Empty disables the check (local/dev).
	WebhookSecret string
	// RequestTimeout bounds one outbound dispatch HTTP call.
	RequestTimeout time.Duration
}

// DispatchConfig tunes the scheduler and the per-tick worker pool.
type DispatchConfig struct {
	// TickInterval is how often due schedule entries are polled.
	TickInterval time.Duration
	// Workers bounds concurrent provider calls within one tick.
	Workers int
	// MaxInFlight caps concurrent dispatches across all instances
	// (enforced via redis). Zero disables the cap.
	MaxInFlight int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_PUBLIC_BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("VOICE_PROVIDER_BASE_URL")), "/")
	c.Provider.APIKey = os.Getenv("VOICE_PROVIDER_API_KEY")
	c.Provider.AgentID = strings.TrimSpace(os.Getenv("VOICE_PROVIDER_AGENT_ID"))
	c.Provider.AgentPhoneNumberID = strings.TrimSpace(os.Getenv("VOICE_PROVIDER_PHONE_NUMBER_ID"))
	c.Provider.WebhookSecret = os.Getenv("VOICE_PROVIDER_WEBHOOK_SECRET")
	c.Provider.RequestTimeout = mustDuration("VOICE_PROVIDER_REQUEST_TIMEOUT")

	c.Dispatch.TickInterval = mustDuration("DISPATCH_TICK_INTERVAL")
	c.Dispatch.Workers = optInt("DISPATCH_WORKERS")
	c.Dispatch.MaxInFlight = optInt("DISPATCH_MAX_IN_FLIGHT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("APP_PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("VOICE_PROVIDER_BASE_URL is required"))
	}
	if c.Provider.APIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("VOICE_PROVIDER_API_KEY is required in production"))
	}
	if c.Provider.AgentID == "" {
		errs = append(errs, errors.New("VOICE_PROVIDER_AGENT_ID is required"))
	}
	if c.Provider.WebhookSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("VOICE_PROVIDER_WEBHOOK_SECRET is required in production"))
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = 30 * time.Second
	}

	if c.Dispatch.TickInterval <= 0 {
		c.Dispatch.TickInterval = time.Minute
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_IN_FLIGHT must be >= 0, got %d", c.Dispatch.MaxInFlight))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// WebhookCallbackURL is handed to the provider at dispatch time.
func (c Config) WebhookCallbackURL() string {
	return c.App.PublicBaseURL + "/webhooks/voice/completed"
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optInt returns 0 for unset or unparsable values; defaults are applied in Validate.
func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
