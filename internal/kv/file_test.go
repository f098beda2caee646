package kv

import (
	"context"
	"testing"
	"time"

	logx "helplink/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	s, err := Open(Config{Driver: "file", Path: dir, Debounce: 10 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileRoundtrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, t.TempDir())
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "broadcasts"); err != nil || ok {
		t.Fatalf("Load on empty store = ok %v, err %v", ok, err)
	}

	payload := []byte(`[{"id":"br-1"}]`)
	if err := s.Save(ctx, "broadcasts", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := s.Load(ctx, "broadcasts")
	if err != nil || !ok {
		t.Fatalf("Load = ok %v, err %v", ok, err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Load = %s", got)
	}
}

func TestKeyFromBase(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base  string
		key   string
		valid bool
	}{
		{base: "broadcasts.json", key: "broadcasts", valid: true},
		{base: "session-alice.json", key: "session-alice", valid: true},
		{base: "broadcasts.json.tmp", valid: false},
		{base: "notes.txt", valid: false},
		{base: ".json", valid: false},
		{base: ".hidden.json", valid: false},
	}
	for _, tt := range tests {
		key, valid := keyFromBase(tt.base)
		if valid != tt.valid || key != tt.key {
			t.Fatalf("keyFromBase(%q) = %q, %v", tt.base, key, valid)
		}
	}
}

func TestWatchDeliversExternalWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Two stores over the same directory simulate two processes.
	a := openTestStore(t, dir)
	b := openTestStore(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Watch(ctx) }()

	ch, unsub := b.Subscribe(4)
	defer unsub()

	// Give the watcher a moment to arm before writing.
	time.Sleep(100 * time.Millisecond)

	payload := []byte(`[{"id":"br-1","clientId":"session-alice"}]`)
	if err := a.Save(context.Background(), "broadcasts", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case c := <-ch:
		if c.Key != "broadcasts" {
			t.Fatalf("Key = %s", c.Key)
		}
		if string(c.Raw) != string(payload) {
			t.Fatalf("Raw = %s", c.Raw)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("external write never delivered")
	}
}

func TestWatchSuppressesSelfWrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := openTestStore(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx) }()

	ch, unsub := s.Subscribe(4)
	defer unsub()

	time.Sleep(100 * time.Millisecond)
	if err := s.Save(context.Background(), "projects", []byte(`[]`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case c := <-ch:
		t.Fatalf("own write echoed back: %s", c.Key)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatchSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := openTestStore(t, dir)
	b := openTestStore(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Watch(ctx) }()

	ch, unsub := b.Subscribe(4)
	defer unsub()
	time.Sleep(100 * time.Millisecond)

	payload := []byte(`[{"id":"br-1"}]`)
	if err := a.Save(context.Background(), "broadcasts", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("first write never delivered")
	}

	// Rewriting identical bytes must not be delivered again.
	if err := a.Save(context.Background(), "broadcasts", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case c := <-ch:
		t.Fatalf("unchanged content redelivered: %s", c.Key)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd", Path: t.TempDir()}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
