package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the orchestrator process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Carrier CarrierConfig
	AI      AIConfig
	Calls   CallsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable base URL used when handing
	// callback/stream URLs to the carrier (e.g. https://api.example.com).
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// CarrierConfig is the process-wide credential fallback for the telephony
// carrier. Per-call credentials resolved from a channel connection record take
// precedence; the fallback is only handed out to full-scope callers.
type CarrierConfig struct {
	AccountSID string
	AuthToken  string
	APIKey     string
	APISecret  string
	AppSID     string

	// WebhookVerifyToken answers GET verification challenges.
	WebhookVerifyToken string

	// AllowUnsignedWebhooks accepts webhooks that carry no signature when no
	// secret is configured for the source. Local/dev relaxation only; outside
	// local/dev the verifier fails closed.
	AllowUnsignedWebhooks bool

	// DefaultFromNumber is the caller id used for outbound calls when the
	// channel connection does not provide one.
	DefaultFromNumber string
}

// AIConfig is the process-wide fallback for the AI conversational backend.
type AIConfig struct {
	BaseURL string
	APIKey  string
	AgentID string

	// SessionRequestTimeout bounds the signed-session-URL request; on timeout
	// the call degrades to direct mode.
	SessionRequestTimeout time.Duration
}

// CallsConfig tunes the in-memory session registry, the conference cleanup
// scheduler, the circuit breaker and cost tracking.
type CallsConfig struct {
	StaleSessionMaxAge    time.Duration
	StaleSweepInterval    time.Duration
	MaxConferenceDuration time.Duration
	ConferenceSweep       time.Duration
	AgentJoinTimeout      time.Duration

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// QualityWindowSize bounds the rolling quality aggregation window
	// (number of recent samples kept).
	QualityWindowSize int

	// RatePerParticipantMinuteMinor prices conference legs in minor units.
	RatePerParticipantMinuteMinor int64
	CostCurrency                  string

	MaxConcurrentCallsPerCompany int
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
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Carrier.AccountSID = strings.TrimSpace(os.Getenv("CARRIER_ACCOUNT_SID"))
	c.Carrier.AuthToken = os.Getenv("CARRIER_AUTH_TOKEN")
	c.Carrier.APIKey = strings.TrimSpace(os.Getenv("CARRIER_API_KEY"))
	c.Carrier.APISecret = os.Getenv("CARRIER_API_SECRET")
	c.Carrier.AppSID = strings.TrimSpace(os.Getenv("CARRIER_APP_SID"))
	c.Carrier.WebhookVerifyToken = os.Getenv("CARRIER_WEBHOOK_VERIFY_TOKEN")
	c.Carrier.AllowUnsignedWebhooks = optBool("CARRIER_ALLOW_UNSIGNED_WEBHOOKS")
	c.Carrier.DefaultFromNumber = strings.TrimSpace(os.Getenv("CARRIER_FROM_NUMBER"))

	c.AI.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("AI_BASE_URL")), "/")
	c.AI.APIKey = os.Getenv("AI_API_KEY")
	c.AI.AgentID = strings.TrimSpace(os.Getenv("AI_AGENT_ID"))
	c.AI.SessionRequestTimeout = optDuration("AI_SESSION_TIMEOUT")

	c.Calls.StaleSessionMaxAge = optDuration("CALLS_STALE_SESSION_MAX_AGE")
	c.Calls.StaleSweepInterval = optDuration("CALLS_STALE_SWEEP_INTERVAL")
	c.Calls.MaxConferenceDuration = optDuration("CALLS_MAX_CONFERENCE_DURATION")
	c.Calls.ConferenceSweep = optDuration("CALLS_CONFERENCE_SWEEP_INTERVAL")
	c.Calls.AgentJoinTimeout = optDuration("CALLS_AGENT_JOIN_TIMEOUT")
	c.Calls.BreakerFailureThreshold = optInt("CALLS_BREAKER_THRESHOLD")
	c.Calls.BreakerCooldown = optDuration("CALLS_BREAKER_COOLDOWN")
	c.Calls.QualityWindowSize = optInt("CALLS_QUALITY_WINDOW")
	c.Calls.RatePerParticipantMinuteMinor = int64(optInt("CALLS_RATE_PER_PARTICIPANT_MINUTE_MINOR"))
	c.Calls.CostCurrency = strings.TrimSpace(os.Getenv("CALLS_COST_CURRENCY"))
	c.Calls.MaxConcurrentCallsPerCompany = optInt("CALLS_MAX_CONCURRENT_PER_COMPANY")

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
		errs = append(errs, errors.New("APP_PUBLIC_BASE_URL is required"))
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
		if c.Carrier.AllowUnsignedWebhooks {
			errs = append(errs, errors.New("CARRIER_ALLOW_UNSIGNED_WEBHOOKS must not be set in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	// Carrier fallback credentials are optional (per-call resolution may cover
	// everything), but partial fallback config is a misconfiguration.
	if (c.Carrier.AccountSID == "") != (c.Carrier.AuthToken == "") {
		errs = append(errs, errors.New("CARRIER_ACCOUNT_SID and CARRIER_AUTH_TOKEN must be set together"))
	}

	if c.AI.SessionRequestTimeout <= 0 {
		c.AI.SessionRequestTimeout = 5 * time.Second
	}

	if c.Calls.StaleSessionMaxAge <= 0 {
		c.Calls.StaleSessionMaxAge = 2 * time.Hour
	}
	if c.Calls.StaleSweepInterval <= 0 {
		c.Calls.StaleSweepInterval = 10 * time.Minute
	}
	if c.Calls.MaxConferenceDuration <= 0 {
		c.Calls.MaxConferenceDuration = 4 * time.Hour
	}
	if c.Calls.ConferenceSweep <= 0 {
		c.Calls.ConferenceSweep = 15 * time.Minute
	}
	if c.Calls.AgentJoinTimeout <= 0 {
		c.Calls.AgentJoinTimeout = 10 * time.Second
	}
	if c.Calls.BreakerFailureThreshold <= 0 {
		c.Calls.BreakerFailureThreshold = 5
	}
	if c.Calls.BreakerCooldown <= 0 {
		c.Calls.BreakerCooldown = 30 * time.Second
	}
	if c.Calls.QualityWindowSize <= 0 {
		c.Calls.QualityWindowSize = 1000
	}
	if c.Calls.RatePerParticipantMinuteMinor <= 0 {
		// 1.4 cents per participant-minute.
		c.Calls.RatePerParticipantMinuteMinor = 14
	}
	if c.Calls.CostCurrency == "" {
		c.Calls.CostCurrency = "USD"
	}
	if c.Calls.MaxConcurrentCallsPerCompany <= 0 {
		c.Calls.MaxConcurrentCallsPerCompany = 50
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
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

func optDuration(key string) time.Duration {
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

func optBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
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
