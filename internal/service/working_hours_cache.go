package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"clinic-scheduler/internal/domain/entity"
	"clinic-scheduler/internal/domain/repository"
	"clinic-scheduler/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	RedisWorkingHoursKeyPrefix        = "doctor:hours:"
	RedisWorkingHoursVersionKeyPrefix = "doctor:hours:ver:"

	// Timeout for individual Redis operations
	redisCacheTimeout = 500 * time.Millisecond

	// Batch size for startup sync - process 500 doctors at a time
	syncBatchSize = 500

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second

	// NoGeneration marks a lookup that could not read the generation; Set ignores it.
	NoGeneration int64 = -1
)

var errCacheMiss = errors.New("working hours cache miss")

// setIfCurrentScript stores the hours only while the doctor's generation still
// matches the one read before the store lookup.
// KEYS[1] = hours key, KEYS[2] = generation key
// ARGV[1] = expected generation, ARGV[2] = payload, ARGV[3] = ttl in ms
var setIfCurrentScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current == false then
	current = '0'
end
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// HoursCache is the read-through cache consulted by the availability checker.
// Lookups never fail: any cache problem is reported as a miss.
//
// A miss also returns the doctor's current generation. Invalidate bumps it, and Set
// only stores hours read under the generation that is still current, so a fill that
// races an update is dropped instead of caching the old hours.
type HoursCache interface {
	Get(ctx context.Context, doctorID int) (hours []entity.WorkingHours, generation int64, ok bool)
	Set(ctx context.Context, doctorID int, generation int64, hours []entity.WorkingHours)
	Invalidate(ctx context.Context, doctorID int)
}

type cachedHours struct {
	hours      []entity.WorkingHours
	generation int64
}

// WorkingHoursCache stores each doctor's weekly hours as one JSON value in Redis,
// next to a per-doctor generation counter.
// Reads go through a circuit breaker so a struggling Redis is skipped instead of
// adding latency to every availability check.
type WorkingHoursCache struct {
	redisClient *redis.Client
	log         *logrus.Logger
	ttl         time.Duration
	metrics     *metrics.Collector
	breaker     *gobreaker.CircuitBreaker[cachedHours]
}

func NewWorkingHoursCache(redisClient *redis.Client, log *logrus.Logger, ttl time.Duration, collector *metrics.Collector) *WorkingHoursCache {
	breaker := gobreaker.NewCircuitBreaker[cachedHours](gobreaker.Settings{
		Name:        "working-hours-cache",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	return &WorkingHoursCache{
		redisClient: redisClient,
		log:         log,
		ttl:         ttl,
		metrics:     collector,
		breaker:     breaker,
	}
}

func workingHoursKey(doctorID int) string {
	return RedisWorkingHoursKeyPrefix + strconv.Itoa(doctorID)
}

func workingHoursVersionKey(doctorID int) string {
	return RedisWorkingHoursVersionKeyPrefix + strconv.Itoa(doctorID)
}

// parseGeneration reads a generation counter value from MGET; a missing key is 0.
func parseGeneration(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected generation value %T", raw)
	}
}

func (c *WorkingHoursCache) Get(ctx context.Context, doctorID int) ([]entity.WorkingHours, int64, bool) {
	result, err := c.breaker.Execute(func() (cachedHours, error) {
		opCtx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
		defer cancel()

		values, err := c.redisClient.MGet(opCtx, workingHoursKey(doctorID), workingHoursVersionKey(doctorID)).Result()
		if err != nil {
			return cachedHours{generation: NoGeneration}, err
		}

		generation, err := parseGeneration(values[1])
		if err != nil {
			return cachedHours{generation: NoGeneration}, fmt.Errorf("decode generation for doctor %d: %w", doctorID, err)
		}

		raw, ok := values[0].(string)
		if !ok {
			return cachedHours{generation: generation}, errCacheMiss
		}

		var hours []entity.WorkingHours
		if err := json.Unmarshal([]byte(raw), &hours); err != nil {
			return cachedHours{generation: generation}, fmt.Errorf("decode cached hours for doctor %d: %w", doctorID, err)
		}
		return cachedHours{hours: hours, generation: generation}, nil
	})

	switch {
	case err == nil:
		c.metrics.ObserveCacheLookup("hit")
		return result.hours, result.generation, true
	case errors.Is(err, errCacheMiss):
		c.metrics.ObserveCacheLookup("miss")
		return nil, result.generation, false
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.ObserveCacheLookup("open")
	default:
		c.metrics.ObserveCacheLookup("error")
		c.log.Warnf("Failed to read working hours cache for doctor %d: %+v", doctorID, err)
	}
	return nil, NoGeneration, false
}

// Set caches hours read from the store under generation. It is a no-op when the
// generation is unknown or has moved on since it was read.
func (c *WorkingHoursCache) Set(ctx context.Context, doctorID int, generation int64, hours []entity.WorkingHours) {
	if generation < 0 || c.breaker.State() == gobreaker.StateOpen {
		return
	}

	payload, err := json.Marshal(hours)
	if err != nil {
		c.log.Warnf("Failed to encode working hours for doctor %d: %+v", doctorID, err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()

	keys := []string{workingHoursKey(doctorID), workingHoursVersionKey(doctorID)}
	stored, err := setIfCurrentScript.Run(opCtx, c.redisClient, keys,
		strconv.FormatInt(generation, 10), payload, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Warnf("Failed to cache working hours for doctor %d: %+v", doctorID, err)
		return
	}
	if stored == 0 {
		c.log.Debugf("Skipped caching stale working hours for doctor %d (generation %d)", doctorID, generation)
	}
}

// Invalidate bumps the doctor's generation and drops the cached entry in one
// transaction. Failures are logged; the TTL bounds staleness.
func (c *WorkingHoursCache) Invalidate(ctx context.Context, doctorID int) {
	opCtx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()

	_, err := c.redisClient.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.Incr(opCtx, workingHoursVersionKey(doctorID))
		pipe.Del(opCtx, workingHoursKey(doctorID))
		return nil
	})
	if err != nil {
		c.log.Warnf("Failed to invalidate working hours cache for doctor %d: %+v", doctorID, err)
		return
	}
	c.log.Debugf("Invalidated working hours cache for doctor %d", doctorID)
}

// SyncOnStartup warms the cache with every doctor's hours, one pipeline per batch.
// Should be called before accepting traffic.
func (c *WorkingHoursCache) SyncOnStartup(ctx context.Context, doctorRepo repository.DoctorRepository) error {
	c.log.Info("Starting working hours cache warm-up from database...")
	startTime := time.Now()

	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.log.Warnf("Redis is not available, skipping warm-up: %+v", err)
		return fmt.Errorf("redis ping failed: %w", err)
	}

	offset := 0
	totalSynced := 0

	for {
		doctors, err := doctorRepo.FindAllWithWorkingHours(ctx, syncBatchSize, offset)
		if err != nil {
			c.log.Errorf("Failed to query doctors at offset %d: %+v", offset, err)
			return fmt.Errorf("query doctors at offset %d: %w", offset, err)
		}

		if len(doctors) == 0 {
			if offset == 0 {
				c.log.Info("No doctors found for warm-up")
			}
			break
		}

		// New pipeline per batch keeps memory bounded.
		pipe := c.redisClient.TxPipeline()
		for _, doctor := range doctors {
			payload, err := json.Marshal(doctor.WorkingHours)
			if err != nil {
				return fmt.Errorf("encode hours for doctor %d: %w", doctor.ID, err)
			}
			pipe.Set(ctx, workingHoursKey(doctor.ID), payload, c.ttl)
		}

		if _, err := pipe.Exec(ctx); err != nil {
			c.log.Errorf("Failed to execute pipeline for batch at offset %d: %+v", offset, err)
			return fmt.Errorf("pipeline exec at offset %d: %w", offset, err)
		}

		totalSynced += len(doctors)
		c.log.Debugf("Synced batch: %d doctors", len(doctors))

		if len(doctors) < syncBatchSize {
			break
		}
		offset += syncBatchSize

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	c.log.Infof("Working hours warm-up completed: %d doctors synced in %v", totalSynced, time.Since(startTime))
	return nil
}
