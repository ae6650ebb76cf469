package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func loadInEmptyDir(t *testing.T) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	return LoadConfig()
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := loadInEmptyDir(t)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.App.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.App.Port)
	}
	if cfg.Scheduling.FallbackPolicy != FallbackDefaultHours {
		t.Errorf("fallback = %q, want %q", cfg.Scheduling.FallbackPolicy, FallbackDefaultHours)
	}
	if cfg.Scheduling.DefaultStart != "09:00" || cfg.Scheduling.DefaultEnd != "17:00" {
		t.Errorf("default window = %s-%s", cfg.Scheduling.DefaultStart, cfg.Scheduling.DefaultEnd)
	}
	if len(cfg.Scheduling.WeekendDays) != 2 || cfg.Scheduling.WeekendDays[0] != time.Saturday || cfg.Scheduling.WeekendDays[1] != time.Sunday {
		t.Errorf("weekend = %v, want [Saturday Sunday]", cfg.Scheduling.WeekendDays)
	}
	if cfg.Scheduling.LockBackend != LockBackendLocal {
		t.Errorf("lock backend = %q", cfg.Scheduling.LockBackend)
	}
	if cfg.Scheduling.LockWait != 3*time.Second || cfg.Scheduling.LockTTL != 10*time.Second {
		t.Errorf("lock wait/ttl = %s/%s", cfg.Scheduling.LockWait, cfg.Scheduling.LockTTL)
	}
	if cfg.JWT.AccessExpiry != 15*time.Minute {
		t.Errorf("access expiry = %s", cfg.JWT.AccessExpiry)
	}
	if cfg.RateLimit.RPS != 5 || cfg.RateLimit.Burst != 10 {
		t.Errorf("rate limit = %v/%d", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SCHEDULING_FALLBACK_POLICY", "Closed")
	t.Setenv("SCHEDULING_WEEKEND_DAYS", "friday")
	t.Setenv("SCHEDULING_LOCK_BACKEND", "redis")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_NAME", "clinic")
	t.Setenv("DB_SSLMODE", "disable")

	cfg, err := loadInEmptyDir(t)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Scheduling.FallbackPolicy != FallbackClosed {
		t.Errorf("fallback = %q, want %q", cfg.Scheduling.FallbackPolicy, FallbackClosed)
	}
	if len(cfg.Scheduling.WeekendDays) != 1 || cfg.Scheduling.WeekendDays[0] != time.Friday {
		t.Errorf("weekend = %v, want [Friday]", cfg.Scheduling.WeekendDays)
	}
	if cfg.Scheduling.LockBackend != LockBackendRedis {
		t.Errorf("lock backend = %q", cfg.Scheduling.LockBackend)
	}
	if want := "pgx5://postgres:@localhost:6543/clinic?sslmode=disable"; cfg.DB.MigrateURL() != want {
		t.Errorf("migrate url = %q, want %q", cfg.DB.MigrateURL(), want)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown fallback", map[string]string{"JWT_SECRET": "s", "SCHEDULING_FALLBACK_POLICY": "always_open"}},
		{"unknown lock backend", map[string]string{"JWT_SECRET": "s", "SCHEDULING_LOCK_BACKEND": "etcd"}},
		{"unknown weekday", map[string]string{"JWT_SECRET": "s", "SCHEDULING_WEEKEND_DAYS": "caturday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := loadInEmptyDir(t); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseWeekdays(t *testing.T) {
	tests := []struct {
		raw     string
		want    []time.Weekday
		wantErr bool
	}{
		{"saturday,sunday", []time.Weekday{time.Saturday, time.Sunday}, false},
		{" Friday , SATURDAY ", []time.Weekday{time.Friday, time.Saturday}, false},
		{"sunday,sunday", []time.Weekday{time.Sunday}, false},
		{"", nil, false},
		{"sat", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseWeekdays(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
