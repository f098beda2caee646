package kv

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "helplink/pkg/logx"
)

// fileStore keeps one JSON document per key (<dir>/<key>.json) and watches
// the directory for writes made by other processes.
type fileStore struct {
	dir string
	log logx.Logger

	debounce time.Duration

	mu sync.Mutex
	// lastSeen tracks the last payload hash per key, covering both our own
	// writes and already-delivered external updates. A watch event whose
	// content hashes to lastSeen is dropped, which suppresses self-write
	// echo and redundant editor-style double events.
	lastSeen map[string]uint64

	// subsMu guards subscriber list and ensures we never send on a channel
	// that is concurrently being closed by its cancel func.
	subsMu sync.Mutex
	subs   []chan Change

	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &fileStore{
		dir:      dir,
		log:      log,
		debounce: debounce,
		lastSeen: map[string]uint64{},
	}, nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func keyFromBase(base string) (string, bool) {
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	key := strings.TrimSuffix(base, ".json")
	if key == "" || strings.HasPrefix(key, ".") {
		return "", false
	}
	return key, true
}

func (s *fileStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	s.lastSeen[key] = hashBytes(b)
	s.mu.Unlock()
	return b, true, nil
}

func (s *fileStore) Save(ctx context.Context, key string, raw []byte) error {
	_ = ctx
	// Record the hash before the write lands so the watcher never races a
	// self-write into a spurious external-change delivery.
	s.mu.Lock()
	s.lastSeen[key] = hashBytes(raw)
	s.mu.Unlock()

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(key))
}

func (s *fileStore) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)

	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, c := range s.subs {
				if c == ch {
					last := len(s.subs) - 1
					s.subs[i] = s.subs[last]
					s.subs[last] = nil
					s.subs = s.subs[:last]
					break
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (s *fileStore) publish(c Change) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		if ch == nil {
			continue
		}
		// Always try to deliver the latest payload.
		// If subscriber is slow and buffer is full, drop ONE oldest item then push the newest.
		select {
		case ch <- c:
			// delivered
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
				// still full; give up
				s.log.Debug("change dropped (subscriber slow)",
					logx.String("key", c.Key),
					logx.Int("queue_cap", cap(ch)),
				)
			}
		}
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Watch observes external writes in the storage directory and fans them out.
//
// When fsnotify gets into a bad state (common on Windows + certain editors),
// the watcher may stop delivering events or close its channels.
// Self-heal by recreating the watcher with a small exponential backoff.
func (s *fileStore) Watch(ctx context.Context) error {
	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	// local RNG to avoid global contention (and to keep jitter deterministic per process).
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// per-key debounce to avoid delivering partial writes
	var (
		timerMu sync.Mutex
		timers  = map[string]*time.Timer{}
	)
	debounce := func(key string) {
		timerMu.Lock()
		defer timerMu.Unlock()
		if t, ok := timers[key]; ok {
			t.Stop()
		}
		timers[key] = time.AfterFunc(s.debounce, func() {
			s.deliver(key)
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(s.dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			s.log.Warn("storage watch init failed", logx.Err(err), logx.String("dir", s.dir))
			wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
			if backoff < restartBackoffMax {
				backoff *= 2
				if backoff > restartBackoffMax {
					backoff = restartBackoffMax
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
				continue
			}
		}

		// success; reset backoff so transient issues don't cause long restart delays
		backoff = restartBackoffBase
		s.log.Debug("storage watcher started", logx.String("dir", s.dir))

		// inner loop: runs until watcher breaks, then outer loop recreates it.
		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				key, valid := keyFromBase(filepath.Base(ev.Name))
				if !valid {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce(key)
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means we may have missed events; rescan everything.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					s.log.Warn("storage watch overflow; rescanning", logx.Err(err))
					s.rescan(debounce)
					continue
				}
				s.log.Warn("storage watch error", logx.Err(err), logx.String("dir", s.dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		s.log.Warn("storage watcher stopped; restarting",
			logx.String("dir", s.dir),
			logx.Duration("backoff", wait),
		)
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
			continue
		}
	}
}

// deliver reads the key's current payload and publishes it unless it matches
// the last seen content for that key.
func (s *fileStore) deliver(key string) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		// Removed or mid-rename; the next event will catch up.
		return
	}
	h := hashBytes(b)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if prev, ok := s.lastSeen[key]; ok && prev == h {
		s.mu.Unlock()
		s.log.Debug("storage change unchanged; skipping", logx.String("key", key))
		return
	}
	s.lastSeen[key] = h
	s.mu.Unlock()

	s.publish(Change{Key: key, Raw: b})
}

// rescan re-delivers every known key (used after event overflow).
func (s *fileStore) rescan(schedule func(key string)) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := keyFromBase(e.Name()); ok {
			schedule(key)
		}
	}
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
