package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/postforge/postforge/domain"
	"github.com/postforge/postforge/resolver"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type calls struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *calls) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[name]++
}

func (c *calls) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

func (c *calls) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := 0
	for _, v := range c.n {
		t += v
	}
	return t
}

type fakeResolver struct {
	c   *calls
	err error
}

func (f *fakeResolver) Resolve(_ context.Context, raw string) (domain.SourceContent, error) {
	f.c.hit("resolve")
	if strings.TrimSpace(raw) == "" {
		return domain.SourceContent{}, resolver.ErrEmptyInput
	}
	if f.err != nil {
		return domain.SourceContent{}, f.err
	}
	return domain.SourceContent{Kind: domain.KindRawText, Text: raw, Length: len(raw), ExtractedAt: testTime}, nil
}

type fakePrefs struct {
	c     *calls
	prefs domain.UserPreferences
	err   error
}

func (f *fakePrefs) Load(_ context.Context, userID string) (domain.UserPreferences, error) {
	f.c.hit("prefs")
	if f.err != nil {
		return domain.UserPreferences{}, f.err
	}
	p := f.prefs
	if p.UserID == "" {
		p = domain.DefaultPreferences(userID)
	}
	return p, nil
}

type fakeGenerator struct {
	c   *calls
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, src domain.SourceContent, _ domain.UserPreferences, _ *domain.ReviewVerdict) (domain.Draft, error) {
	f.c.hit("generate")
	if f.err != nil {
		return domain.Draft{}, f.err
	}
	return domain.NewDraft("draft about "+src.Text, testTime), nil
}

// scriptedReviewer returns verdicts in order and repeats the last one.
type scriptedReviewer struct {
	c        *calls
	verdicts []domain.ReviewVerdict
	err      error
	block    bool

	mu   sync.Mutex
	seen []int
}

func (r *scriptedReviewer) Review(ctx context.Context, d domain.Draft, _ domain.UserPreferences) (domain.ReviewVerdict, error) {
	r.c.hit("review")
	if r.block {
		<-ctx.Done()
		return domain.ReviewVerdict{}, ctx.Err()
	}
	if r.err != nil {
		return domain.ReviewVerdict{}, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, d.Version)
	i := len(r.seen) - 1
	if i >= len(r.verdicts) {
		i = len(r.verdicts) - 1
	}
	return r.verdicts[i], nil
}

func alwaysPass(c *calls) *scriptedReviewer {
	return &scriptedReviewer{c: c, verdicts: []domain.ReviewVerdict{{Pass: true}}}
}

func alwaysFail(c *calls) *scriptedReviewer {
	return &scriptedReviewer{c: c, verdicts: []domain.ReviewVerdict{{
		Violations: []domain.Violation{domain.ViolationToneMismatch},
		Feedback:   "too stiff",
	}}}
}

type fakeRefiner struct {
	c       *calls
	err     error
	badStep int // version delta; zero means +1
	empty   bool
}

func (f *fakeRefiner) Refine(_ context.Context, d domain.Draft, v domain.ReviewVerdict, _ domain.UserPreferences) (domain.Draft, error) {
	f.c.hit("refine")
	if f.err != nil {
		return domain.Draft{}, f.err
	}
	text := d.Text + " (revised)"
	if f.empty {
		text = ""
	}
	next := domain.NextDraft(d, text, v, testTime)
	if f.badStep != 0 {
		next.Version = d.Version + f.badStep
	}
	return next, nil
}

type fakeImager struct {
	c     *calls
	err   error
	width int
}

func (f *fakeImager) CreateImage(_ context.Context, d domain.Draft, _ domain.UserPreferences) (domain.ImageArtifact, error) {
	f.c.hit("image")
	if f.err != nil {
		return domain.ImageArtifact{}, f.err
	}
	w := domain.ImageWidth
	if f.width != 0 {
		w = f.width
	}
	return domain.ImageArtifact{
		Ref:          "images/test.png",
		Data:         []byte("png"),
		MIMEType:     "image/png",
		Width:        w,
		Height:       domain.ImageHeight,
		DraftVersion: d.Version,
		CreatedAt:    testTime,
	}, nil
}

type fakeSink struct {
	c   *calls
	err error

	mu    sync.Mutex
	saved []domain.StoredPost
}

func (f *fakeSink) Persist(_ context.Context, rec domain.StoredPost) (domain.StoredPost, error) {
	f.c.hit("persist")
	if f.err != nil {
		return domain.StoredPost{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = "post-1"
	if rec.Image != nil {
		rec.ImageRef = "posts/post-1/test.png"
	}
	f.saved = append(f.saved, rec)
	return rec, nil
}

func (f *fakeSink) records() []domain.StoredPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StoredPost(nil), f.saved...)
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, res Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return f.err
}

var errBoom = errors.New("boom")
