package locking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLockerSerializes(t *testing.T) {
	locker := NewLocalLocker()
	key := Key("0xABC", 59144)
	if key != "0xabc:59144" {
		t.Fatalf("key = %s", key)
	}

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), key)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	other, err := locker.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("independent key: %v", err)
	}
	other()
}

func TestUnlockIsIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	unlock, _ := locker.Lock(context.Background(), "k")
	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestRedisLockerRequiresClient(t *testing.T) {
	if _, err := NewRedisLocker(nil, RedisConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
