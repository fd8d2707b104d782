package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"contest-engine/internal/domain"
	"github.com/redis/go-redis/v9"
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

// QuestionCache caches question content in Redis and falls back to a loader on miss.
// Questions are stored as: SET quiz:question:{questionID} {json}
type QuestionCache struct {
	client *redis.Client
	lister QuestionIDLister
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, lister QuestionIDLister, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		lister: lister,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestionIDs(ctx context.Context, filter domain.QuestionFilter) ([]string, error) {
	return c.lister.ListQuestionIDs(ctx, filter)
}

func (c *QuestionCache) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	hits, missing := c.lookup(ctx, ids)
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

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, q := range loaded {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
			}
			pipe.Set(ctx, c.key(q.ID), raw, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("question cache: fill: %v", err)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return append(hits, result.([]domain.Question)...), nil
}

// lookup treats any Redis failure as a miss.
func (c *QuestionCache) lookup(ctx context.Context, ids []string) ([]domain.Question, []string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids
	}

	hits := make([]domain.Question, 0, len(ids))
	var missing []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		hits = append(hits, q)
	}
	return hits, missing
}

func (c *QuestionCache) key(questionID string) string {
	return "quiz:question:" + questionID
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
