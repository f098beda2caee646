package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "helplink/pkg/logx"
)

// Change is an externally observed write to a shared collection key.
// Raw is the new stored payload as written; it may be malformed and
// consumers must tolerate that.
type Change struct {
	Key string
	Raw []byte
}

// Store is the durable key->JSON layer shared by all actors.
//
// Subscribe delivers changes made by OTHER actors sharing the same storage.
// Delivery is at-least-once and may be redundant; handlers must treat an
// identical payload delivered twice as a no-op. No ordering is guaranteed
// between different keys.
type Store interface {
	// Load returns the stored payload for key, or ok=false when absent.
	Load(ctx context.Context, key string) (raw []byte, ok bool, err error)

	// Save writes the payload for key. Best-effort: callers do not build
	// control flow on its error beyond logging.
	Save(ctx context.Context, key string, raw []byte) error

	// Subscribe registers a change consumer. The returned cancel func
	// unregisters it and closes the channel.
	Subscribe(buffer int) (<-chan Change, func())

	// Watch blocks, observing external writes and fanning them out to
	// subscribers until ctx is done.
	Watch(ctx context.Context) error

	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per key, fsnotify change watch
//   - "sqlite": single database file, revision polling (build tag sqlite)
type Config struct {
	Driver       string
	Path         string
	Debounce     time.Duration // file driver; 0 means default
	PollInterval time.Duration // sqlite driver; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
