package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postforge/postforge/domain"
)

// MemorySink keeps records in process. Image bytes go to its ImageStore.
type MemorySink struct {
	images ImageStore
	locks  keyedMutex
	now    func() time.Time

	mu    sync.RWMutex
	posts map[string]domain.StoredPost
}

func NewMemorySink(images ImageStore) *MemorySink {
	if images == nil {
		images = NewMemoryImageStore()
	}
	return &MemorySink{images: images, now: time.Now, posts: map[string]domain.StoredPost{}}
}

func (m *MemorySink) Persist(ctx context.Context, rec domain.StoredPost) (domain.StoredPost, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredPost{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	unlock := m.locks.Lock(rec.ID)
	defer unlock()

	m.mu.RLock()
	_, exists := m.posts[rec.ID]
	m.mu.RUnlock()
	if exists {
		return domain.StoredPost{}, fmt.Errorf("%w: %s", ErrConflict, rec.ID)
	}

	now := m.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.ImageRef = ""
	if rec.Image != nil {
		key := imageKey(rec.ID, rec.Image.Ref)
		if err := m.images.Put(ctx, key, rec.Image.Data, rec.Image.MIMEType); err != nil {
			return domain.StoredPost{}, fmt.Errorf("store image: %w", err)
		}
		img := *rec.Image
		img.Ref = key
		rec.Image = &img
		rec.ImageRef = key
	}
	stored := clonePost(rec)

	m.mu.Lock()
	m.posts[rec.ID] = stored
	m.mu.Unlock()
	return clonePost(stored), nil
}

func (m *MemorySink) Get(_ context.Context, id string) (domain.StoredPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return domain.StoredPost{}, fmt.Errorf("%w: post %s", ErrNotFound, id)
	}
	return clonePost(p), nil
}

func (m *MemorySink) ListByUser(_ context.Context, userID string, limit int) ([]domain.StoredPost, error) {
	m.mu.RLock()
	var out []domain.StoredPost
	for _, p := range m.posts {
		if p.UserID == userID {
			out = append(out, clonePost(p))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Images exposes the blob store records point into.
func (m *MemorySink) Images() ImageStore { return m.images }
