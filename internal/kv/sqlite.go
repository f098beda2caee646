//go:build sqlite
// +build sqlite

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "helplink/pkg/logx"
)

// sqliteStore shares one database file between actors. External changes are
// detected by polling the monotonically increasing revision column; an
// actor's own writes are skipped by remembering the revisions it produced.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	poll time.Duration

	mu       sync.Mutex
	lastRev  int64
	ownRevs  map[int64]struct{}
	lastSeen map[string]uint64

	subsMu sync.Mutex
	subs   []chan Change
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key      TEXT PRIMARY KEY,
	value    BLOB NOT NULL,
	revision INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_revision ON kv(revision);
`

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	st := &sqliteStore{
		db:       db,
		log:      log,
		poll:     poll,
		ownRevs:  map[int64]struct{}{},
		lastSeen: map[string]uint64{},
	}
	if err := st.db.QueryRow(`SELECT IFNULL(MAX(revision), 0) FROM kv`).Scan(&st.lastRev); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *sqliteStore) Save(ctx context.Context, key string, raw []byte) error {
	var rev int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv(key, value, revision)
		 VALUES(?, ?, (SELECT IFNULL(MAX(revision), 0) + 1 FROM kv))
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   revision = excluded.revision
		 RETURNING revision`,
		key, raw,
	).Scan(&rev)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	s.mu.Lock()
	s.ownRevs[rev] = struct{}{}
	s.lastSeen[key] = hashBytes(raw)
	s.mu.Unlock()
	return nil
}

func (s *sqliteStore) Subscribe(buffer int) (<-chan Change, func()) {
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

func (s *sqliteStore) publish(c Change) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- c:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
				s.log.Debug("change dropped (subscriber slow)", logx.String("key", c.Key))
			}
		}
	}
}

// Watch polls for rows with revisions above the last observed one.
func (s *sqliteStore) Watch(ctx context.Context) error {
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.sweep(ctx); err != nil {
				s.log.Warn("storage poll failed", logx.Err(err))
			}
		}
	}
}

func (s *sqliteStore) sweep(ctx context.Context) error {
	s.mu.Lock()
	since := s.lastRev
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, revision FROM kv WHERE revision > ? ORDER BY revision`, since)
	if err != nil {
		return err
	}
	defer rows.Close()

	type row struct {
		key string
		val []byte
		rev int64
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.val, &r.rev); err != nil {
			return err
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range pending {
		s.mu.Lock()
		if r.rev > s.lastRev {
			s.lastRev = r.rev
		}
		if _, own := s.ownRevs[r.rev]; own {
			delete(s.ownRevs, r.rev)
			s.mu.Unlock()
			continue
		}
		h := hashBytes(r.val)
		if prev, ok := s.lastSeen[r.key]; ok && prev == h {
			s.mu.Unlock()
			continue
		}
		s.lastSeen[r.key] = h
		s.mu.Unlock()

		s.publish(Change{Key: r.key, Raw: r.val})
	}
	return nil
}
