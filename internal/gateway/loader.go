package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// entry pairs a registered Loadable with its own mutex so concurrent
// EnsureLoaded calls for the same kind serialize on load, and a last-used
// timestamp the idle-unload sweep consults.
type entry struct {
	mu       sync.Mutex
	loadable Loadable
	lastUsed time.Time
}

// Loader is the lazy loader of §4.3: it holds the three model capabilities
// behind a registry keyed by kind, loads on first use, and unloads a model
// that has been idle past the configured timeout.
type Loader struct {
	mu          sync.RWMutex
	entries     map[Kind]*entry
	idleTimeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLoader creates a loader that unloads idle models after idleTimeout.
// A zero idleTimeout disables idle unloading.
func NewLoader(idleTimeout time.Duration) *Loader {
	l := &Loader{
		entries:     make(map[Kind]*entry),
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
	}
	if idleTimeout > 0 {
		go l.sweep()
	}
	return l
}

// Register associates a Loadable with a model kind. Call once per kind
// before any EnsureLoaded for it.
func (l *Loader) Register(kind Kind, loadable Loadable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[kind] = &entry{loadable: loadable, lastUsed: time.Now()}
}

// EnsureLoaded blocks until the model for kind is usable, or returns false
// with the load error if it could not be brought up. Concurrent calls for
// the same kind serialize on a single load attempt.
func (l *Loader) EnsureLoaded(ctx context.Context, kind Kind) (bool, error) {
	l.mu.RLock()
	e, ok := l.entries[kind]
	l.mu.RUnlock()
	if !ok {
		return false, ErrUnregisteredKind
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastUsed = time.Now()
	if e.loadable.IsLoaded() {
		return true, nil
	}

	if err := e.loadable.Load(ctx); err != nil {
		logrus.WithError(err).WithField("kind", kind).Warn("model load failed")
		return false, err
	}
	return true, nil
}

// Touch refreshes the idle clock for kind without forcing a load, called
// after each successful capability invocation.
func (l *Loader) Touch(kind Kind) {
	l.mu.RLock()
	e, ok := l.entries[kind]
	l.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

func (l *Loader) sweep() {
	ticker := time.NewTicker(l.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.unloadIdle()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Loader) unloadIdle() {
	l.mu.RLock()
	entries := make(map[Kind]*entry, len(l.entries))
	for k, e := range l.entries {
		entries[k] = e
	}
	l.mu.RUnlock()

	for kind, e := range entries {
		e.mu.Lock()
		if e.loadable.IsLoaded() && time.Since(e.lastUsed) >= l.idleTimeout {
			if err := e.loadable.Unload(); err != nil {
				logrus.WithError(err).WithField("kind", kind).Warn("model unload failed")
			} else {
				logrus.WithField("kind", kind).Info("model unloaded after idle timeout")
			}
		}
		e.mu.Unlock()
	}
}

// Stop halts the idle-unload sweep. It does not unload any loaded models.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
