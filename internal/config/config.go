package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		Driver string `yaml:"driver"` // postgres | sqlite
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		Kind      string        `yaml:"kind"` // memory | redis
		TTL       time.Duration `yaml:"ttl"`
		RedisAddr string        `yaml:"redis_addr"`
		RedisDB   int           `yaml:"redis_db"`
		RedisPass string        `yaml:"redis_password"`
		KeyPrefix string        `yaml:"key_prefix"`
	} `yaml:"cache"`

	SMTP struct {
		Service            string        `yaml:"service"` // well-known provider, e.g. gmail
		Host               string        `yaml:"host"`
		Port               int           `yaml:"port"`
		Username           string        `yaml:"username"`
		Password           string        `yaml:"password"`
		DisplayName        string        `yaml:"display_name"`
		TLS                string        `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
		Timeout            time.Duration `yaml:"timeout"`
	} `yaml:"smtp"`

	Email struct {
		BackendURL     string `yaml:"backend_url"`
		FrontendURL    string `yaml:"frontend_url"`
		SystemSenderID string `yaml:"system_sender_id"`
	} `yaml:"email"`

	Dispatch struct {
		Concurrency      int           `yaml:"concurrency"`
		SendTimeout      time.Duration `yaml:"send_timeout"`
		ScheduledWorkers int           `yaml:"scheduled_workers"`
		// SkipPreflight disables the transport check made before each campaign.
		SkipPreflight bool `yaml:"skip_preflight"`
	} `yaml:"dispatch"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	AMQP struct {
		URL string `yaml:"url"`
	} `yaml:"amqp"`
}

// wellKnownSMTP maps EMAIL_SERVICE names to submission endpoints.
var wellKnownSMTP = map[string]struct {
	host string
	port int
}{
	"gmail":   {"smtp.gmail.com", 587},
	"outlook": {"smtp.office365.com", 587},
	"yahoo":   {"smtp.mail.yahoo.com", 465},
}

// Load reads path (optional, "" skips the file), applies environment
// overrides and fills defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "postgres" {
		c.Storage.DSN = postgresDSNFromEnv()
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 2 * time.Minute
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "campusconnect"
	}
	if c.SMTP.Service == "" {
		c.SMTP.Service = "gmail"
	}
	if known, ok := wellKnownSMTP[strings.ToLower(c.SMTP.Service)]; ok {
		if c.SMTP.Host == "" {
			c.SMTP.Host = known.host
		}
		if c.SMTP.Port == 0 {
			c.SMTP.Port = known.port
		}
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.DisplayName == "" {
		c.SMTP.DisplayName = "Campus Connect"
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 20 * time.Second
	}
	if c.Email.BackendURL == "" {
		c.Email.BackendURL = "http://localhost:5000"
	}
	if c.Email.FrontendURL == "" {
		c.Email.FrontendURL = "http://localhost:3000"
	}
	if c.Email.SystemSenderID == "" {
		c.Email.SystemSenderID = "system"
	}
	if c.Dispatch.Concurrency <= 0 {
		c.Dispatch.Concurrency = 10
	}
	if c.Dispatch.SendTimeout == 0 {
		c.Dispatch.SendTimeout = 30 * time.Second
	}
	if c.Dispatch.ScheduledWorkers <= 0 {
		c.Dispatch.ScheduledWorkers = 4
	}
}

// Validate reports the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

// postgresDSNFromEnv builds a DSN from the DB_* variables.
func postgresDSNFromEnv() string {
	user := os.Getenv("DB_USER")
	if user == "" {
		return ""
	}
	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")
	sslmode := envOr("DB_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, os.Getenv("DB_PASSWORD"), host, port, os.Getenv("DB_NAME"), sslmode)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	} else if v, ok := getEnvStr("PORT"); ok {
		c.Server.Addr = ":" + v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvDur("CACHE_TTL"); ok {
		c.Cache.TTL = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.RedisAddr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.RedisDB = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.RedisPass = v
	}

	// SMTP
	if v, ok := getEnvStr("EMAIL_SERVICE"); ok {
		c.SMTP.Service = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("EMAIL_USER"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("EMAIL_APP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("EMAIL_DISPLAY_NAME"); ok {
		c.SMTP.DisplayName = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}
	if v, ok := getEnvDur("SMTP_TIMEOUT"); ok {
		c.SMTP.Timeout = v
	}

	// EMAIL
	if v, ok := getEnvStr("BACKEND_URL"); ok {
		c.Email.BackendURL = v
	}
	if v, ok := getEnvStr("FRONTEND_URL"); ok {
		c.Email.FrontendURL = v
	}
	if v, ok := getEnvStr("SYSTEM_ADMIN_ID"); ok {
		c.Email.SystemSenderID = v
	}

	// DISPATCH
	if v, ok := getEnvInt("DISPATCH_CONCURRENCY"); ok {
		c.Dispatch.Concurrency = v
	}
	if v, ok := getEnvDur("DISPATCH_SEND_TIMEOUT"); ok {
		c.Dispatch.SendTimeout = v
	}
	if v, ok := getEnvInt("SCHEDULED_WORKERS"); ok {
		c.Dispatch.ScheduledWorkers = v
	}
	if v, ok := getEnvBool("DISPATCH_SKIP_PREFLIGHT"); ok {
		c.Dispatch.SkipPreflight = v
	}

	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := getEnvStr("AMQP_URL"); ok {
		c.AMQP.URL = v
	}
}
