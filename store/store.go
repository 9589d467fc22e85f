// Package store durably records finished runs and their images.
package store

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/postforge/postforge/domain"
)

var (
	// ErrNotFound is returned for unknown post ids and image keys.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record with the same post id exists.
	ErrConflict = errors.New("post already exists")
)

// Sink is the persistence contract: one atomic write per run. It returns
// the record as committed, with ID and ImageRef assigned.
type Sink interface {
	Persist(ctx context.Context, rec domain.StoredPost) (domain.StoredPost, error)
	Get(ctx context.Context, id string) (domain.StoredPost, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.StoredPost, error)
}

// imageKey places an image under its post so a failed write can remove
// exactly what it created.
func imageKey(postID, ref string) string {
	base := path.Base(strings.TrimSpace(ref))
	if base == "" || base == "." || base == "/" {
		base = "image.png"
	}
	return "posts/" + postID + "/" + base
}

// keyedMutex serializes work per key without blocking distinct keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refLock{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func clonePost(p domain.StoredPost) domain.StoredPost {
	out := p
	out.Versions = make([]domain.Draft, len(p.Versions))
	for i, d := range p.Versions {
		if d.Feedback != nil {
			v := d.Feedback.Clone()
			d.Feedback = &v
		}
		out.Versions[i] = d
	}
	out.Reviews = make([]domain.ReviewRecord, len(p.Reviews))
	for i, r := range p.Reviews {
		r.Verdict = r.Verdict.Clone()
		out.Reviews[i] = r
	}
	if p.Image != nil {
		img := *p.Image
		img.Data = nil
		out.Image = &img
	}
	out.Preferences = p.Preferences.Clone()
	return out
}
