package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingLoadable struct {
	loads   int32
	unloads int32
	loaded  int32
}

func (c *countingLoadable) Load(ctx context.Context) error {
	atomic.AddInt32(&c.loads, 1)
	atomic.StoreInt32(&c.loaded, 1)
	return nil
}

func (c *countingLoadable) Unload() error {
	atomic.AddInt32(&c.unloads, 1)
	atomic.StoreInt32(&c.loaded, 0)
	return nil
}

func (c *countingLoadable) IsLoaded() bool {
	return atomic.LoadInt32(&c.loaded) == 1
}

func TestEnsureLoadedLoadsOnce(t *testing.T) {
	l := NewLoader(0)
	defer l.Stop()

	c := &countingLoadable{}
	l.Register(KindASR, c)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.EnsureLoaded(context.Background(), KindASR)
			if !ok || err != nil {
				t.Errorf("EnsureLoaded failed: ok=%v err=%v", ok, err)
			}
		}()
	}
	wg.Wait()

	if c.loads != 1 {
		t.Errorf("expected exactly 1 load call, got %d", c.loads)
	}
}

func TestEnsureLoadedUnregisteredKind(t *testing.T) {
	l := NewLoader(0)
	defer l.Stop()

	_, err := l.EnsureLoaded(context.Background(), KindTTS)
	if err != ErrUnregisteredKind {
		t.Errorf("expected ErrUnregisteredKind, got %v", err)
	}
}

func TestIdleUnload(t *testing.T) {
	l := NewLoader(30 * time.Millisecond)
	defer l.Stop()

	c := &countingLoadable{}
	l.Register(KindMT, c)

	if _, err := l.EnsureLoaded(context.Background(), KindMT); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&c.unloads) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if c.unloads == 0 {
		t.Error("expected model to be unloaded after idle timeout")
	}
}

func TestTouchDelaysIdleUnload(t *testing.T) {
	l := NewLoader(60 * time.Millisecond)
	defer l.Stop()

	c := &countingLoadable{}
	l.Register(KindTTS, c)
	if _, err := l.EnsureLoaded(context.Background(), KindTTS); err != nil {
		t.Fatal(err)
	}

	stop := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(stop) {
		l.Touch(KindTTS)
		time.Sleep(20 * time.Millisecond)
	}

	if c.unloads != 0 {
		t.Error("expected touch to keep the model loaded past the idle timeout")
	}
}
