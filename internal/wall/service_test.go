package wall

import (
	"context"
	"errors"
	"sync"
	"testing"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/internal/kv"
	"helplink/internal/state"
	logx "helplink/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	return raw, ok, nil
}

func (m *memStore) Save(_ context.Context, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), raw...)
	return nil
}

func (m *memStore) Subscribe(int) (<-chan kv.Change, func()) {
	ch := make(chan kv.Change)
	return ch, func() { close(ch) }
}

func (m *memStore) Watch(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *memStore) Close() error { return nil }

func newTestService(role entity.Role) (*Service, *state.Store) {
	store := state.New()
	return New(store, &memStore{data: map[string][]byte{}}, role, logx.Nop()), store
}

func TestAddPost(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(entity.RoleRequester)

	p, err := svc.AddPost(context.Background(), "Alice", "Finished my deck restore!", "", []string{"diy"})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if p.ID == "" || p.CreatedAt.IsZero() {
		t.Fatalf("post = %+v", p)
	}
	if got := store.WallPosts(); len(got) != 1 || got[0].ID != p.ID {
		t.Fatalf("store = %+v", got)
	}

	if _, err := svc.AddPost(context.Background(), "Alice", "", "", nil); !errors.Is(err, apperr.ErrMalformedData) {
		t.Fatalf("empty post err = %v", err)
	}
}

func TestLikeToggleIsPerRole(t *testing.T) {
	t.Parallel()
	reqSvc, store := newTestService(entity.RoleRequester)
	respSvc := New(store, &memStore{data: map[string][]byte{}}, entity.RoleResponder, logx.Nop())

	p, _ := reqSvc.AddPost(context.Background(), "Alice", "post", "", nil)

	if err := reqSvc.LikePost(context.Background(), p.ID); err != nil {
		t.Fatalf("LikePost: %v", err)
	}
	if err := respSvc.LikePost(context.Background(), p.ID); err != nil {
		t.Fatalf("LikePost: %v", err)
	}

	got := store.WallPosts()[0]
	if got.Likes != 2 || !got.LikedByRequester || !got.LikedByResponder {
		t.Fatalf("post = %+v", got)
	}

	// Unlike from one side leaves the other side's like intact.
	if err := reqSvc.LikePost(context.Background(), p.ID); err != nil {
		t.Fatalf("LikePost: %v", err)
	}
	got = store.WallPosts()[0]
	if got.Likes != 1 || got.LikedByRequester || !got.LikedByResponder {
		t.Fatalf("post after unlike = %+v", got)
	}
}

func TestAddComment(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(entity.RoleRequester)
	p, _ := svc.AddPost(context.Background(), "Alice", "post", "", nil)

	if err := svc.AddComment(context.Background(), p.ID, "Bob", "Looks great"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	got := store.WallPosts()[0]
	if len(got.Comments) != 1 || got.Comments[0].AuthorName != "Bob" {
		t.Fatalf("comments = %+v", got.Comments)
	}

	if err := svc.AddComment(context.Background(), "post-missing", "Bob", "hi"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveToCollectionIdempotent(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(entity.RoleRequester)
	p, _ := svc.AddPost(context.Background(), "Alice", "post", "", nil)

	col, err := svc.CreateCollection(context.Background(), "Deck ideas")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	if err := svc.SavePostToCollection(context.Background(), col.ID, p.ID); err != nil {
		t.Fatalf("SavePostToCollection: %v", err)
	}
	if err := svc.SavePostToCollection(context.Background(), col.ID, p.ID); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got := store.Collections()[0]
	if len(got.PostIDs) != 1 || got.PostIDs[0] != p.ID {
		t.Fatalf("collection = %+v", got)
	}
}

func TestSaveToCollectionMissingTargets(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(entity.RoleRequester)
	p, _ := svc.AddPost(context.Background(), "Alice", "post", "", nil)

	if err := svc.SavePostToCollection(context.Background(), "col-missing", p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing collection err = %v", err)
	}
	col, _ := svc.CreateCollection(context.Background(), "x")
	if err := svc.SavePostToCollection(context.Background(), col.ID, "post-missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing post err = %v", err)
	}
}

func TestSyncReplacesSnapshots(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(entity.RoleRequester)

	if _, err := svc.AddPost(context.Background(), "Alice", "Before photo of the deck", "", nil); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	ext := []entity.WallPost{{ID: "post-ext", AuthorName: "Bob", Content: "Finished the deck"}}
	svc.SyncPosts(ext)
	if got := store.WallPosts(); len(got) != 1 || got[0].ID != "post-ext" {
		t.Fatalf("posts = %+v", got)
	}

	svc.SyncCollections([]entity.Collection{{ID: "col-ext", Name: "Deck ideas"}})
	if got := store.Collections(); len(got) != 1 || got[0].ID != "col-ext" {
		t.Fatalf("collections = %+v", got)
	}
}
