package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultSecretKey is only fit for development: Validate rejects it outside debug mode.
const DefaultSecretKey = "k8#2vq!w0z)lp3$xn=4a&d9e(r7m^t1b6u5c*y@o-hf+sgj"

var ErrDefaultSecretKey = errors.New("the default secret key cannot be used outside debug mode, set JWT_SECRET or <ENV>_SECRET_KEY")

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
		RateLimitRequests         int
		RateLimitWindow           time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string
		URL           string // takes precedence over the fields below when set
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	UploadsConfig struct {
		Dir         string
		MaxSize     int64
		AllowedExts []string
	}

	LogConfig struct {
		Level  string
		Format string // console | json
	}

	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		RollbarToken              string
		SendgridAPIKey            string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Uploads  UploadsConfig
		Log      LogConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and the environment.
// Env vars are prefixed with the upper-cased ENV value (DEV, TEST, QA, PROD), e.g. DEV_SECRET_KEY.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.Getwd: %v", err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("build", "dev")
	v.SetDefault("app_name", "PSMS")
	v.SetDefault("secret_key", DefaultSecretKey)
	v.SetDefault("work_dir", wd)
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("default_from_name", "PSMS")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":5000")
	v.SetDefault("server_debug_host", ":5001")
	v.SetDefault("jwt_expiration_delta", 24*time.Hour)
	v.SetDefault("jwt_refresh_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("rate_limit_requests", 10)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("disable_req_logs", false)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_url", "")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "psms")
	v.SetDefault("database_user", "psms")
	v.SetDefault("database_password", "psms")
	v.SetDefault("database_admin_user", "postgres")
	v.SetDefault("database_admin_password", "postgres")
	v.SetDefault("database_disable_tls", env == "DEV" || env == "TEST")

	v.SetDefault("uploads_dir", filepath.Join(wd, "uploads"))
	v.SetDefault("uploads_max_size", int64(10<<20))
	v.SetDefault("uploads_allowed_exts", ".pdf,.doc,.docx,.txt,.zip,.rar")

	v.SetDefault("log_level", "debug")
	v.SetDefault("log_format", "console")

	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	// common deployment vars without prefix
	for key, envKey := range map[string]string{
		"database_url":   "DATABASE_URL",
		"secret_key":     "JWT_SECRET",
		"server_address": "PORT",
	} {
		if val, ok := os.LookupEnv(envKey); ok && val != "" {
			if envKey == "PORT" && !strings.Contains(val, ":") {
				val = ":" + val
			}
			v.Set(key, val)
		}
	}

	return &Config{
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("test_mode"),
		AppName:         v.GetString("app_name"),
		SecretKey:       v.GetString("secret_key"),
		WorkDir:         v.GetString("work_dir"),
		FrontendBaseURL: v.GetString("frontend_base_url"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("default_from_name"),
			Address: v.GetString("default_from_email"),
		},
		RollbarToken:              v.GetString("rollbar_token"),
		SendgridAPIKey:            v.GetString("sendgrid_api_key"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			Address:                   v.GetString("server_address"),
			DebugHost:                 v.GetString("server_debug_host"),
			JWTExpirationDelta:        v.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt_refresh_expiration_delta"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			RateLimitRequests:         v.GetInt("rate_limit_requests"),
			RateLimitWindow:           v.GetDuration("rate_limit_window"),
			DisableReqLogs:            v.GetBool("disable_req_logs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			URL:           v.GetString("database_url"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			DisableTLS:    v.GetBool("database_disable_tls"),
		},
		Uploads: UploadsConfig{
			Dir:         v.GetString("uploads_dir"),
			MaxSize:     v.GetInt64("uploads_max_size"),
			AllowedExts: splitList(v.GetString("uploads_allowed_exts")),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
}

// Validate checks the settings the server cannot safely run without.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("the secret key is required")
	}
	if !c.Debug && c.SecretKey == DefaultSecretKey {
		return ErrDefaultSecretKey
	}
	return nil
}

// NewTestConfig returns a Config suitable for tests: no file or env lookups.
func NewTestConfig() *Config {
	wd, _ := os.Getwd()
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "PSMS",
		SecretKey:                 "test-secret",
		WorkDir:                   wd,
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "PSMS", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
			RateLimitRequests:         1000,
			RateLimitWindow:           time.Minute,
			DisableReqLogs:            true,
		},
		Uploads: UploadsConfig{
			MaxSize:     10 << 20,
			AllowedExts: []string{".pdf", ".doc", ".docx", ".txt", ".zip", ".rar"},
		},
		Log: LogConfig{Level: "disabled", Format: "json"},
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item, true /* lower */); item != "" {
			items = append(items, item)
		}
	}
	return items
}
