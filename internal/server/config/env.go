package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names. JWT_SECRET, PORT, MAIL_USER and MAIL_PASS
// keep the names existing deployments already export.
const (
	envHTTPPort        = "PORT"
	envHTTPAddr        = "HTTP_ADDR"
	envGRPCAddr        = "GRPC_ADDR"
	envStoreDriver     = "STORE_DRIVER"
	envDatabaseDSN     = "DATABASE_DSN"
	envSecretKey       = "JWT_SECRET"
	envTokenValidity   = "JWT_EXPIRES_IN"
	envBcryptCost      = "BCRYPT_COST"
	envVerifyBaseURL   = "VERIFY_BASE_URL"
	envMailDriver      = "MAIL_DRIVER"
	envMailFrom        = "MAIL_FROM"
	envSMTPHost        = "SMTP_HOST"
	envSMTPPort        = "SMTP_PORT"
	envSMTPUser        = "MAIL_USER"
	envSMTPPassword    = "MAIL_PASS"
	envSESRegion       = "SES_REGION"
	envSESAccessKey    = "SES_ACCESS_KEY_ID"
	envSESSecretKey    = "SES_SECRET_ACCESS_KEY"
	envRateLimit       = "RATE_LIMIT"
	envRateLimitWindow = "RATE_LIMIT_WINDOW"
	envRedisAddr       = "REDIS_ADDR"
	envRedisPassword   = "REDIS_PASSWORD"
	envRedisDB         = "REDIS_DB"
	envTrustedProxies  = "TRUSTED_PROXIES"
	envLogLevel        = "LOG_LEVEL"
	envLogFormat       = "LOG_FORMAT"
)

// dotenvFiles is a seam for tests.
var dotenvFiles = []string{".env"}

// parseEnv overlays values from the process environment. A .env file in the
// working directory is loaded first when present; variables already set in
// the environment win over the file. Malformed numbers and durations are
// ignored so the previous layer's value stays in effect.
func parseEnv(config *Config) {
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	if v, ok := os.LookupEnv(envHTTPPort); ok && v != "" {
		config.EndpointAddrHTTP = ":" + v
	}
	envString(&config.EndpointAddrHTTP, envHTTPAddr)
	envString(&config.EndpointAddrGRPC, envGRPCAddr)
	envString(&config.StoreDriver, envStoreDriver)
	envString(&config.DatabaseDSN, envDatabaseDSN)
	envString(&config.SecretKey, envSecretKey)
	envDuration(&config.AccessTokenValidityDuration, envTokenValidity)
	envInt(&config.BcryptCost, envBcryptCost)
	envString(&config.VerifyBaseURL, envVerifyBaseURL)
	envString(&config.MailDriver, envMailDriver)
	envString(&config.MailFrom, envMailFrom)
	envString(&config.SMTPHost, envSMTPHost)
	envInt(&config.SMTPPort, envSMTPPort)
	envString(&config.SMTPUser, envSMTPUser)
	envString(&config.SMTPPassword, envSMTPPassword)
	envString(&config.SESRegion, envSESRegion)
	envString(&config.SESAccessKeyID, envSESAccessKey)
	envString(&config.SESSecretAccessKey, envSESSecretKey)
	envInt(&config.RateLimit, envRateLimit)
	envDuration(&config.RateLimitWindow, envRateLimitWindow)
	envString(&config.RedisAddr, envRedisAddr)
	envString(&config.RedisPassword, envRedisPassword)
	envInt(&config.RedisDB, envRedisDB)
	envList(&config.TrustedProxies, envTrustedProxies)
	envString(&config.LogLevel, envLogLevel)
	envString(&config.LogFormat, envLogFormat)

	// Without an explicit sender, mail goes out from the SMTP account.
	if config.MailFrom == "" && config.SMTPUser != "" {
		config.MailFrom = config.SMTPUser
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// envList reads a comma-separated list, skipping empty items.
func envList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
