package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Port        int
	DatabaseURL string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int

	ExternalAPIURL string
	ExternalAPIKey string

	AdminPassword string

	KafkaBrokers []string
	KafkaTopic   string

	CORSOrigins []string
}

var required = []string{
	"DATABASE_URL",
	"REDIS_HOST",
	"REDIS_PORT",
	"REDIS_TTL",
	"JWT_SECRET",
	"JWT_REFRESH_SECRET",
	"JWT_ACCESS_TOKEN_EXPIRATION_TIME",
	"JWT_REFRESH_TOKEN_EXPIRATION_TIME",
	"EXTERNAL_API_URL",
	"EXTERNAL_API_KEY",
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return LoadFrom(v)
}

// LoadFrom reads the configuration from an already populated viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var problems []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			problems = append(problems, key+" is required")
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}

	cfg := &Config{
		Port:           v.GetInt("PORT"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		RedisHost:      v.GetString("REDIS_HOST"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		AccessSecret:   v.GetString("JWT_SECRET"),
		RefreshSecret:  v.GetString("JWT_REFRESH_SECRET"),
		BcryptCost:     v.GetInt("BCRYPT_COST"),
		ExternalAPIURL: v.GetString("EXTERNAL_API_URL"),
		ExternalAPIKey: v.GetString("EXTERNAL_API_KEY"),
		AdminPassword:  v.GetString("ADMIN_PASSWORD"),
		KafkaTopic:     v.GetString("KAFKA_TOPIC"),
		KafkaBrokers:   splitList(v.GetString("KAFKA_BROKERS")),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
	}

	var err error
	if cfg.RedisPort, err = strconv.Atoi(strings.TrimSpace(v.GetString("REDIS_PORT"))); err != nil {
		problems = append(problems, "REDIS_PORT must be a number")
	}
	if cfg.CacheTTL, err = ParseDuration(v.GetString("REDIS_TTL")); err != nil {
		problems = append(problems, "REDIS_TTL: "+err.Error())
	}
	if cfg.AccessTTL, err = ParseDuration(v.GetString("JWT_ACCESS_TOKEN_EXPIRATION_TIME")); err != nil {
		problems = append(problems, "JWT_ACCESS_TOKEN_EXPIRATION_TIME: "+err.Error())
	}
	if cfg.RefreshTTL, err = ParseDuration(v.GetString("JWT_REFRESH_TOKEN_EXPIRATION_TIME")); err != nil {
		problems = append(problems, "JWT_REFRESH_TOKEN_EXPIRATION_TIME: "+err.Error())
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("ADMIN_PASSWORD", "password")
	v.SetDefault("KAFKA_TOPIC", "task-events")
}

// Validate checks cross-field constraints after parsing and reports every
// violation at once.
func (c *Config) Validate() error {
	var problems []string
	if c.AccessSecret == c.RefreshSecret {
		problems = append(problems, "JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.CacheTTL <= 0 {
		problems = append(problems, "expiration times must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT %d", c.Port))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		problems = append(problems, fmt.Sprintf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ParseDuration accepts Go durations ("15m"), whole days ("7d") and bare
// numbers, which are read as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
