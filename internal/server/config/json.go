package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/flagx"
	"github.com/dmitrijs2005/gophaccount/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "2h" and integer nanoseconds are accepted.
// Fields left out of the file keep their current value.
type JsonConfig struct {
	EndpointAddrHTTP            string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC            string          `json:"endpoint_addr_grpc"`
	RoutePrefix                 string          `json:"route_prefix"`
	StoreDriver                 string          `json:"store_driver"`
	DatabaseDSN                 string          `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	BcryptCost                  int             `json:"bcrypt_cost"`
	VerifyBaseURL               string          `json:"verify_base_url"`
	MailDriver                  string          `json:"mail_driver"`
	MailFrom                    string          `json:"mail_from"`
	SMTPHost                    string          `json:"smtp_host"`
	SMTPPort                    int             `json:"smtp_port"`
	SMTPUser                    string          `json:"smtp_user"`
	SMTPPassword                string          `json:"smtp_password"`
	SESRegion                   string          `json:"ses_region"`
	SESAccessKeyID              string          `json:"ses_access_key_id"`
	SESSecretAccessKey          string          `json:"ses_secret_access_key"`
	NotifyWorkers               int             `json:"notify_workers"`
	NotifyQueueSize             int             `json:"notify_queue_size"`
	NotifyTimeout               *timex.Duration `json:"notify_timeout"`
	RateLimit                   int             `json:"rate_limit"`
	RateLimitWindow             *timex.Duration `json:"rate_limit_window"`
	RedisAddr                   string          `json:"redis_addr"`
	RedisPassword               string          `json:"redis_password"`
	RedisDB                     *int            `json:"redis_db"`
	TrustedProxies              []string        `json:"trusted_proxies"`
	LogLevel                    string          `json:"log_level"`
	LogFormat                   string          `json:"log_format"`
	HealthCheckInterval         *timex.Duration `json:"health_check_interval"`
}

// parseJson overlays values from the file named by -c / -config. Nothing
// happens when no file is given; an unreadable or malformed file panics.
func parseJson(config *Config) {
	path := flagx.ConfigFile(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.RoutePrefix, c.RoutePrefix)
	setString(&config.StoreDriver, c.StoreDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.VerifyBaseURL, c.VerifyBaseURL)
	setString(&config.MailDriver, c.MailDriver)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SESRegion, c.SESRegion)
	setString(&config.SESAccessKeyID, c.SESAccessKeyID)
	setString(&config.SESSecretAccessKey, c.SESSecretAccessKey)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	setInt(&config.BcryptCost, c.BcryptCost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setInt(&config.NotifyWorkers, c.NotifyWorkers)
	setInt(&config.NotifyQueueSize, c.NotifyQueueSize)
	setInt(&config.RateLimit, c.RateLimit)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.TrustedProxies != nil {
		config.TrustedProxies = c.TrustedProxies
	}

	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.NotifyTimeout, c.NotifyTimeout)
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setDuration(&config.HealthCheckInterval, c.HealthCheckInterval)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
