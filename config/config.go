package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	RateLimit  RateLimitConfig
}

type AppConfig struct {
	Port       string
	Env        string
	Timezone   string
	CORSOrigin string
}

type DBConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
	AutoMigrate  bool
}

// DSN returns the key/value DSN used by the gorm postgres driver.
func (d DBConfig) DSN(timezone string) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, timezone,
	)
}

// MigrateURL returns the URL form understood by golang-migrate's pgx/v5 driver.
func (d DBConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	AccessExpiry time.Duration
}

type LogConfig struct {
	Level string
}

// Fallback policies applied when a doctor has no working-hours entry for a weekday.
const (
	FallbackDefaultHours = "default_hours"
	FallbackClosed       = "closed"
)

// Slot locker backends.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type SchedulingConfig struct {
	FallbackPolicy    string
	DefaultStart      string // HH:mm
	DefaultEnd        string // HH:mm
	WeekendDays       []time.Weekday
	LockBackend       string
	LockTTL           time.Duration
	LockWait          time.Duration
	WorkingHoursTTL   time.Duration
	CacheWorkingHours bool
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_TIMEZONE", "UTC")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_NAME", "clinic")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_IDLE_CONNS", 10)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 100)
	viper.SetDefault("DB_AUTO_MIGRATE", true)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("JWT_ACCESS_EXPIRY", "15m")

	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("SCHEDULING_FALLBACK_POLICY", FallbackDefaultHours)
	viper.SetDefault("SCHEDULING_DEFAULT_START", "09:00")
	viper.SetDefault("SCHEDULING_DEFAULT_END", "17:00")
	viper.SetDefault("SCHEDULING_WEEKEND_DAYS", "saturday,sunday")
	viper.SetDefault("SCHEDULING_LOCK_BACKEND", LockBackendLocal)
	viper.SetDefault("SCHEDULING_LOCK_TTL", "10s")
	viper.SetDefault("SCHEDULING_LOCK_WAIT", "3s")
	viper.SetDefault("SCHEDULING_WORKING_HOURS_TTL", "10m")
	viper.SetDefault("SCHEDULING_CACHE_WORKING_HOURS", true)

	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
}

func LoadConfig() (*Config, error) {
	setDefaults()
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// .env is optional; plain environment variables are enough in containers.
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("JWT_ACCESS_EXPIRY"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	weekend, err := ParseWeekdays(viper.GetString("SCHEDULING_WEEKEND_DAYS"))
	if err != nil {
		return nil, err
	}

	policy := strings.ToLower(viper.GetString("SCHEDULING_FALLBACK_POLICY"))
	if policy != FallbackDefaultHours && policy != FallbackClosed {
		return nil, fmt.Errorf("unknown SCHEDULING_FALLBACK_POLICY %q", policy)
	}

	lockBackend := strings.ToLower(viper.GetString("SCHEDULING_LOCK_BACKEND"))
	if lockBackend != LockBackendLocal && lockBackend != LockBackendRedis {
		return nil, fmt.Errorf("unknown SCHEDULING_LOCK_BACKEND %q", lockBackend)
	}

	config := &Config{
		App: AppConfig{
			Port:       viper.GetString("APP_PORT"),
			Env:        viper.GetString("APP_ENV"),
			Timezone:   viper.GetString("APP_TIMEZONE"),
			CORSOrigin: viper.GetString("APP_CORS_ORIGIN"),
		},
		DB: DBConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Name:         viper.GetString("DB_NAME"),
			SSLMode:      viper.GetString("DB_SSLMODE"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			AutoMigrate:  viper.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:       viper.GetString("JWT_SECRET"),
			AccessExpiry: accessExpiry,
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		Scheduling: SchedulingConfig{
			FallbackPolicy:    policy,
			DefaultStart:      viper.GetString("SCHEDULING_DEFAULT_START"),
			DefaultEnd:        viper.GetString("SCHEDULING_DEFAULT_END"),
			WeekendDays:       weekend,
			LockBackend:       lockBackend,
			LockTTL:           viper.GetDuration("SCHEDULING_LOCK_TTL"),
			LockWait:          viper.GetDuration("SCHEDULING_LOCK_WAIT"),
			WorkingHoursTTL:   viper.GetDuration("SCHEDULING_WORKING_HOURS_TTL"),
			CacheWorkingHours: viper.GetBool("SCHEDULING_CACHE_WORKING_HOURS"),
		},
		RateLimit: RateLimitConfig{
			RPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst: viper.GetInt("RATE_LIMIT_BURST"),
		},
	}

	if config.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return config, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekdays parses a comma separated list of weekday names ("saturday,sunday").
// An empty string yields no days.
func ParseWeekdays(raw string) ([]time.Weekday, error) {
	var days []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	return days, nil
}
