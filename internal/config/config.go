package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	Environment string
	PostgresDSN string

	TokenSecret   string
	TokenLifetime time.Duration

	ProviderURL     string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	MembershipTimeout time.Duration

	AuthBypassPaths    []string
	ContextBypassPaths []string

	AccessPolicyBundlePath string
	AccessPolicyBundleID   string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Public endpoints that never require a credential. Sign-in flows have to be
// reachable before any token exists.
var defaultAuthBypass = []string{
	"/healthz",
	"/docs",
	"/redoc",
	"/openapi.json",
	"/api/v1/auth/signup",
	"/api/v1/auth/signin",
	"/api/v1/auth/otp",
	"/api/v1/auth/oauth",
	"/api/v1/auth/password-recovery",
	"/api/v1/auth/refresh",
}

// Business-context bypass: the public set plus endpoints that operate on the
// caller itself rather than on a business.
var defaultContextBypass = append(append([]string{}, defaultAuthBypass...),
	"/api/v1/users/me",
	"/api/v1/auth/switch-business",
	"/api/v1/business-context/current",
)

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		Environment:            envDefault("APP_ENV", "development"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		TokenSecret:            os.Getenv("TOKEN_SECRET"),
		TokenLifetime:          envDurationDefault("TOKEN_LIFETIME", 24*time.Hour),
		ProviderURL:            os.Getenv("IDENTITY_PROVIDER_URL"),
		ProviderAPIKey:         os.Getenv("IDENTITY_PROVIDER_API_KEY"),
		ProviderTimeout:        envDurationDefault("IDENTITY_PROVIDER_TIMEOUT", 5*time.Second),
		MembershipTimeout:      envDurationDefault("MEMBERSHIP_TIMEOUT", 3*time.Second),
		AuthBypassPaths:        envListDefault("AUTH_BYPASS_PATHS", defaultAuthBypass),
		ContextBypassPaths:     envListDefault("CONTEXT_BYPASS_PATHS", defaultContextBypass),
		AccessPolicyBundlePath: os.Getenv("ACCESS_POLICY_BUNDLE_PATH"),
		AccessPolicyBundleID:   os.Getenv("ACCESS_POLICY_BUNDLE_ID"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envListDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
