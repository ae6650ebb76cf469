package service

import (
	"context"
	"testing"
	"time"

	"clinic-scheduler/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// unreachableRedis points at a closed local port so every command fails fast.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestWorkingHoursCacheTripsBreaker(t *testing.T) {
	client := unreachableRedis()
	defer client.Close()

	collector := metrics.NewCollector("test")
	cache := NewWorkingHoursCache(client, testLogger(), time.Minute, collector)

	for i := 0; i < breakerFailureThreshold; i++ {
		_, generation, ok := cache.Get(context.Background(), 1)
		if ok {
			t.Fatal("unreachable redis must report a miss")
		}
		if generation != NoGeneration {
			t.Fatalf("generation = %d, want NoGeneration when redis is down", generation)
		}
	}

	if cache.breaker.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", cache.breaker.State())
	}

	if _, _, ok := cache.Get(context.Background(), 1); ok {
		t.Fatal("open breaker must report a miss")
	}

	if got := testutil.ToFloat64(collector.CacheLookupsTotal.WithLabelValues("error")); got != breakerFailureThreshold {
		t.Errorf("error lookups = %v, want %d", got, breakerFailureThreshold)
	}
	if got := testutil.ToFloat64(collector.CacheLookupsTotal.WithLabelValues("open")); got != 1 {
		t.Errorf("open lookups = %v, want 1", got)
	}

	// Writes are skipped while open and must not panic.
	cache.Set(context.Background(), 1, 0, nil)
	cache.Invalidate(context.Background(), 1)
}

func TestWorkingHoursKeys(t *testing.T) {
	if got := workingHoursKey(42); got != "doctor:hours:42" {
		t.Fatalf("workingHoursKey = %q", got)
	}
	if got := workingHoursVersionKey(42); got != "doctor:hours:ver:42" {
		t.Fatalf("workingHoursVersionKey = %q", got)
	}
}

func TestParseGeneration(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		want    int64
		wantErr bool
	}{
		{"missing key", nil, 0, false},
		{"counter", "7", 7, false},
		{"garbage", "seven", 0, true},
		{"unexpected type", 7, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGeneration(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("generation = %d, want %d", got, tt.want)
			}
		})
	}
}
