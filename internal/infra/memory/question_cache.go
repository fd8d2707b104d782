package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"contest-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// QuestionIDLister lists question ids; listings are never cached.
type QuestionIDLister interface {
	ListQuestionIDs(ctx context.Context, filter domain.QuestionFilter) ([]string, error)
}

// QuestionCache caches question content with TTL to avoid repeated DB hits.
// Id listings pass through so solo draws always see fresh progress.
type QuestionCache struct {
	lister QuestionIDLister
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(lister QuestionIDLister, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		lister: lister,
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

func (c *QuestionCache) ListQuestionIDs(ctx context.Context, filter domain.QuestionFilter) ([]string, error) {
	return c.lister.ListQuestionIDs(ctx, filter)
}

func (c *QuestionCache) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	hits, missing := c.lookup(ids)
	if len(missing) == 0 {
		return hits, nil
	}

	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	result, err, _ := c.sf.Do(strings.Join(sorted, ","), func() (interface{}, error) {
		loaded, err := c.loader.LoadQuestions(ctx, missing)
		if err != nil {
			return nil, err
		}

		now := c.clock()
		c.mu.Lock()
		for _, q := range loaded {
			c.cache[q.ID] = cachedQuestion{
				question:  q,
				expiresAt: now.Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return append(hits, result.([]domain.Question)...), nil
}

func (c *QuestionCache) lookup(ids []string) ([]domain.Question, []string) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := make([]domain.Question, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			hits = append(hits, entry.question)
			continue
		}
		missing = append(missing, id)
	}
	return hits, missing
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
