package redis

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// QuestionSource yields a session's question set from a backing store.
type QuestionSource interface {
	Questions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// AnswerKeyCache caches each session's answer key in Redis (hash per
// session) and falls back to the source on a miss. Only what scoring needs
// is cached:
//
//	HSET session:{id}:answers {questionID} {correctIndex}
//	HSET session:{id}:points  {questionID} {points}
//
// Prompts and option texts are not cached in this lightweight form.
type AnswerKeyCache struct {
	client *redis.Client
	source QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	// rnd is shared across singleflight callbacks for different sessions
	// and needs its own lock.
	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewAnswerKeyCache(client *redis.Client, source QuestionSource, ttl time.Duration) *AnswerKeyCache {
	return &AnswerKeyCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AnswerKeyCache) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	answerKey := c.answersKey(sessionID)
	pointKey := c.pointsKey(sessionID)

	answers, err := c.client.HGetAll(ctx, answerKey).Result()
	if err == nil && len(answers) > 0 {
		pointsMap, _ := c.client.HGetAll(ctx, pointKey).Result()
		return questionsFromCache(answers, pointsMap), nil
	}

	result, err, _ := c.sf.Do(sessionID, func() (interface{}, error) {
		// Re-check the cache in case another goroutine filled it.
		answers, err := c.client.HGetAll(ctx, answerKey).Result()
		if err == nil && len(answers) > 0 {
			pointsMap, _ := c.client.HGetAll(ctx, pointKey).Result()
			return questionsFromCache(answers, pointsMap), nil
		}

		questions, err := c.source.Questions(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, q := range questions {
			points := q.Points
			if points == 0 {
				points = domain.DefaultQuestionPoints
			}
			pipe.HSet(ctx, answerKey, q.ID, q.CorrectIndex)
			pipe.HSet(ctx, pointKey, q.ID, points)
		}
		if ttl > 0 {
			pipe.Expire(ctx, answerKey, ttl)
			pipe.Expire(ctx, pointKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Forget drops a session's cached key, e.g. after the session is deleted.
func (c *AnswerKeyCache) Forget(ctx context.Context, sessionID string) {
	_ = c.client.Del(ctx, c.answersKey(sessionID), c.pointsKey(sessionID)).Err()
}

func (c *AnswerKeyCache) answersKey(sessionID string) string {
	return "session:" + sessionID + ":answers"
}

func (c *AnswerKeyCache) pointsKey(sessionID string) string {
	return "session:" + sessionID + ":points"
}

func questionsFromCache(answers map[string]string, pointsMap map[string]string) []domain.Question {
	questions := make([]domain.Question, 0, len(answers))
	for questionID, idxStr := range answers {
		correctIndex, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		points := domain.DefaultQuestionPoints
		if pStr, ok := pointsMap[questionID]; ok {
			if p, err := strconv.Atoi(pStr); err == nil && p > 0 {
				points = p
			}
		}
		questions = append(questions, domain.Question{
			ID:           questionID,
			CorrectIndex: correctIndex,
			Points:       points,
		})
	}
	return questions
}

func (c *AnswerKeyCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	jitter := c.rnd.Int63n(jitterMax + 1)
	c.rndMu.Unlock()
	return c.ttl + time.Duration(jitter)
}
