// Package wall manages the shared community feed and per-actor saved
// collections. Posts and collections live in the shared durable layer, so
// both actors see each other's writes after a sync.
package wall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/internal/kv"
	"helplink/internal/state"
	"helplink/pkg/logx"
)

type Service struct {
	mu    sync.Mutex
	store *state.Store
	kv    kv.Store
	log   logx.Logger
	role  entity.Role
	now   func() time.Time
}

// New wires the wall service over the shared store.
func New(store *state.Store, db kv.Store, role entity.Role, log logx.Logger) *Service {
	return &Service{store: store, kv: db, role: role, log: log, now: time.Now}
}

// AddPost publishes a new post at the head of the feed.
func (s *Service) AddPost(ctx context.Context, authorName, content, image string, tags []string) (entity.WallPost, error) {
	if content == "" && image == "" {
		return entity.WallPost{}, fmt.Errorf("add post: empty post: %w", apperr.ErrMalformedData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := entity.WallPost{
		ID:         entity.NewID("post"),
		AuthorName: authorName,
		Content:    content,
		Image:      image,
		Tags:       tags,
		Comments:   []entity.WallComment{},
		CreatedAt:  s.now(),
	}
	next := append([]entity.WallPost{p}, s.store.WallPosts()...)
	s.store.ReplaceWallPosts(next)
	s.persistPosts(ctx, next)
	return p, nil
}

// LikePost toggles this actor's like on a post. Each role tracks its own
// toggle so the two actors cannot clobber each other's state.
func (s *Service) LikePost(ctx context.Context, postID string) error {
	return s.updatePost(ctx, postID, func(p *entity.WallPost) {
		liked := p.LikedByRequester
		if s.role == entity.RoleResponder {
			liked = p.LikedByResponder
		}
		if liked {
			p.Likes--
		} else {
			p.Likes++
		}
		if s.role == entity.RoleResponder {
			p.LikedByResponder = !liked
		} else {
			p.LikedByRequester = !liked
		}
	})
}

// AddComment appends a comment to a post.
func (s *Service) AddComment(ctx context.Context, postID, authorName, content string) error {
	if content == "" {
		return fmt.Errorf("add comment: empty comment: %w", apperr.ErrMalformedData)
	}
	return s.updatePost(ctx, postID, func(p *entity.WallPost) {
		p.Comments = append(p.Comments, entity.WallComment{
			ID:         entity.NewID("cmt"),
			AuthorName: authorName,
			Content:    content,
			CreatedAt:  s.now(),
		})
	})
}

func (s *Service) updatePost(ctx context.Context, postID string, fn func(*entity.WallPost)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := s.store.WallPosts()
	idx := -1
	for i := range posts {
		if posts[i].ID == postID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("post %s: %w", postID, apperr.ErrNotFound)
	}

	updated := posts[idx]
	updated.Comments = append([]entity.WallComment{}, posts[idx].Comments...)
	fn(&updated)

	next := make([]entity.WallPost, len(posts))
	copy(next, posts)
	next[idx] = updated

	s.store.ReplaceWallPosts(next)
	s.persistPosts(ctx, next)
	return nil
}

// CreateCollection adds an empty named collection.
func (s *Service) CreateCollection(ctx context.Context, name string) (entity.Collection, error) {
	if name == "" {
		return entity.Collection{}, fmt.Errorf("create collection: empty name: %w", apperr.ErrMalformedData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := entity.Collection{
		ID:      entity.NewID("col"),
		Name:    name,
		PostIDs: []string{},
	}
	next := append([]entity.Collection{}, s.store.Collections()...)
	next = append(next, c)
	s.store.ReplaceCollections(next)
	s.persistCollections(ctx, next)
	return c, nil
}

// SavePostToCollection files a post under a collection. Saving a post that is
// already there is a no-op.
func (s *Service) SavePostToCollection(ctx context.Context, collectionID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.postByID(postID); !ok {
		return fmt.Errorf("post %s: %w", postID, apperr.ErrNotFound)
	}

	cols := s.store.Collections()
	idx := -1
	for i := range cols {
		if cols[i].ID == collectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("collection %s: %w", collectionID, apperr.ErrNotFound)
	}
	for _, id := range cols[idx].PostIDs {
		if id == postID {
			return nil
		}
	}

	updated := cols[idx]
	updated.PostIDs = append(append([]string{}, cols[idx].PostIDs...), postID)

	next := make([]entity.Collection, len(cols))
	copy(next, cols)
	next[idx] = updated

	s.store.ReplaceCollections(next)
	s.persistCollections(ctx, next)
	return nil
}

// SyncPosts swaps in an externally observed feed snapshot. Runs under the
// command lock so a local post-modify-replace never interleaves with it.
func (s *Service) SyncPosts(next []entity.WallPost) {
	s.mu.Lock()
	s.store.ReplaceWallPosts(next)
	s.mu.Unlock()
}

// SyncCollections swaps in an externally observed collections snapshot.
func (s *Service) SyncCollections(next []entity.Collection) {
	s.mu.Lock()
	s.store.ReplaceCollections(next)
	s.mu.Unlock()
}

func (s *Service) postByID(id string) (entity.WallPost, bool) {
	for _, p := range s.store.WallPosts() {
		if p.ID == id {
			return p, true
		}
	}
	return entity.WallPost{}, false
}

func (s *Service) persistPosts(ctx context.Context, posts []entity.WallPost) {
	if err := kv.SaveJSON(ctx, s.kv, state.KeyWallPosts, posts); err != nil {
		s.log.Warn("persist wall posts failed", logx.Err(err))
	}
}

func (s *Service) persistCollections(ctx context.Context, cols []entity.Collection) {
	if err := kv.SaveJSON(ctx, s.kv, state.KeyCollections, cols); err != nil {
		s.log.Warn("persist collections failed", logx.Err(err))
	}
}
