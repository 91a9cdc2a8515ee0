package client

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisLocker_AcquireErrorWhenUnreachable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	locker := NewRedisLocker(unreachableRedis(t), logger)

	release, ok, err := locker.Acquire(context.Background(), "cues:ep-1", time.Minute)
	if err == nil {
		t.Fatal("expected an error from an unreachable redis")
	}
	if ok || release != nil {
		t.Errorf("lock must not be granted, ok=%v", ok)
	}
}

func TestRedisLocker_ReleaseFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	locker := NewRedisLocker(unreachableRedis(t), logger)

	locker.release("lock:cues:ep-1", "token")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry for the failed release")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("level = %s, want warning", entry.Level)
	}
	if entry.Data["key"] != "lock:cues:ep-1" || entry.Data["component"] != "locker" {
		t.Errorf("unexpected fields %v", entry.Data)
	}
}
