package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clinic-scheduler/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLockTimeout is returned when a slot lock could not be acquired within the wait budget.
var ErrLockTimeout = errors.New("timed out waiting for slot lock")

// releaseLockScript deletes the lock only if it still holds our token, so an expired
// lock re-acquired by another instance is never released by us.
var releaseLockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

const (
	RedisSlotLockKeyPrefix = "slot:lock:"

	// Interval for cleaning up stale slot mutexes
	slotCleanupInterval = 10 * time.Minute

	// How long a slot mutex must be unused before cleanup
	slotStaleThreshold = 10 * time.Minute

	redisLockRetryInterval = 25 * time.Millisecond
	redisReleaseTimeout    = 2 * time.Second
)

// SlotLocker serialises writers of one doctor's calendar day.
// The returned unlock func is safe to call more than once.
type SlotLocker interface {
	Lock(ctx context.Context, doctorID int, date time.Time) (unlock func(), err error)
}

func slotKey(doctorID int, date time.Time) string {
	return fmt.Sprintf("%d:%s", doctorID, date.Format(entity.DateLayout))
}

// =============================================================================
// In-process locker
// =============================================================================

// LocalSlotLocker keeps one mutex per (doctor, date) in memory. It only protects a
// single process; multi-instance deployments use RedisSlotLocker.
type LocalSlotLocker struct {
	log  *logrus.Logger
	wait time.Duration

	slots sync.Map // map[string]*slotMutex

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// slotMutex is a channel semaphore so waiters can give up on ctx or timeout.
type slotMutex struct {
	sem      chan struct{}
	lastUsed atomic.Int64 // Unix timestamp
}

// NewLocalSlotLocker starts the background sweeper; call Stop during shutdown.
// A non-positive wait means waiting is bounded only by ctx.
func NewLocalSlotLocker(log *logrus.Logger, wait time.Duration) *LocalSlotLocker {
	l := &LocalSlotLocker{
		log:      log,
		wait:     wait,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// Stop shuts down the sweeper. Safe to call multiple times.
func (l *LocalSlotLocker) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.stopChan)
		l.wg.Wait()
		l.log.Info("LocalSlotLocker stopped")
	}
}

func (l *LocalSlotLocker) Lock(ctx context.Context, doctorID int, date time.Time) (func(), error) {
	key := slotKey(doctorID, date)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	for {
		m := l.getSlotMutex(key)

		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: slot %s: %v", ErrLockTimeout, key, ctx.Err())
		}

		// The sweeper may have dropped m while we were waiting on it.
		if current, ok := l.slots.Load(key); !ok || current != m {
			<-m.sem
			continue
		}

		m.lastUsed.Store(time.Now().Unix())
		var once sync.Once
		return func() {
			once.Do(func() {
				m.lastUsed.Store(time.Now().Unix())
				<-m.sem
			})
		}, nil
	}
}

func (l *LocalSlotLocker) getSlotMutex(key string) *slotMutex {
	v, _ := l.slots.LoadOrStore(key, &slotMutex{sem: make(chan struct{}, 1)})
	m := v.(*slotMutex)
	m.lastUsed.Store(time.Now().Unix())
	return m
}

func (l *LocalSlotLocker) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(slotCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			l.log.Debug("Slot mutex cleanup goroutine stopping")
			return
		case <-ticker.C:
			l.cleanupStale(time.Now().Add(-slotStaleThreshold))
		}
	}
}

// cleanupStale drops unheld mutexes last used before cutoff and returns how many it removed.
func (l *LocalSlotLocker) cleanupStale(cutoff time.Time) int {
	var cleaned int

	l.slots.Range(func(key, value any) bool {
		m, ok := value.(*slotMutex)
		if !ok {
			return true
		}

		select {
		case m.sem <- struct{}{}:
			if m.lastUsed.Load() < cutoff.Unix() {
				l.slots.Delete(key)
				cleaned++
			}
			<-m.sem
		default:
			// held by someone
		}
		return true
	})

	if cleaned > 0 {
		l.log.Debugf("Cleaned up %d stale slot mutexes", cleaned)
	}
	return cleaned
}

// =============================================================================
// Redis locker
// =============================================================================

// RedisSlotLocker holds a SET NX PX lease per (doctor, date), shared by all instances.
type RedisSlotLocker struct {
	redisClient *redis.Client
	log         *logrus.Logger
	ttl         time.Duration
	wait        time.Duration
}

func NewRedisSlotLocker(redisClient *redis.Client, log *logrus.Logger, ttl, wait time.Duration) *RedisSlotLocker {
	return &RedisSlotLocker{
		redisClient: redisClient,
		log:         log,
		ttl:         ttl,
		wait:        wait,
	}
}

func (l *RedisSlotLocker) Lock(ctx context.Context, doctorID int, date time.Time) (func(), error) {
	key := RedisSlotLockKeyPrefix + slotKey(doctorID, date)
	token := uuid.NewString()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	ticker := time.NewTicker(redisLockRetryInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.redisClient.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			l.log.Warnf("Failed to acquire redis slot lock %s: %+v", key, err)
			return nil, fmt.Errorf("acquire slot lock %s: %w", key, err)
		}
		if acquired {
			var once sync.Once
			return func() {
				once.Do(func() { l.release(key, token) })
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: slot %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisSlotLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisReleaseTimeout)
	defer cancel()

	if err := releaseLockScript.Run(ctx, l.redisClient, []string{key}, token).Err(); err != nil {
		// The lease still expires after ttl.
		l.log.Warnf("Failed to release redis slot lock %s: %+v", key, err)
	}
}
