package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gemini-playground/internal/models"
)

const resultFieldPrefix = "result:"

// RedisStore keeps each session in a hash plus a list for the history, both
// under "session:<instance>:<id>". RPUSH keeps the history append-only and
// ordered even when several requests for one session race.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, instanceID uuid.UUID, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:" + instanceID.String() + ":",
		ttl:    ttl,
	}
}

func (s *RedisStore) hashKey(id uuid.UUID) string    { return s.prefix + id.String() }
func (s *RedisStore) historyKey(id uuid.UUID) string { return s.prefix + id.String() + ":history" }

func (s *RedisStore) Create(ctx context.Context) (*models.Session, error) {
	sess := &models.Session{
		ID:        uuid.New(),
		History:   []models.ChatTurn{},
		Results:   make(map[models.ResultKind]string),
		CreatedAt: time.Now().UTC(),
	}

	key := s.hashKey(sess.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "created_at", sess.CreatedAt.Format(time.RFC3339Nano), "user_name", "")
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	key, histKey := s.hashKey(id), s.historyKey(id)

	var fields *redis.MapStringStringCmd
	var rawTurns *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		rawTurns = pipe.LRange(ctx, histKey, 0, -1)
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, histKey, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	vals := fields.Val()
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	sess := &models.Session{
		ID:       id,
		UserName: vals["user_name"],
		History:  make([]models.ChatTurn, 0, len(rawTurns.Val())),
		Results:  make(map[models.ResultKind]string),
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, vals["created_at"])

	for field, val := range vals {
		if kind, ok := strings.CutPrefix(field, resultFieldPrefix); ok {
			sess.Results[models.ResultKind(kind)] = val
		}
	}

	for _, raw := range rawTurns.Val() {
		var turn models.ChatTurn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			return nil, fmt.Errorf("corrupt chat turn in session %s: %w", id, err)
		}
		sess.History = append(sess.History, turn)
	}

	return sess, nil
}

func (s *RedisStore) exists(ctx context.Context, id uuid.UUID) error {
	n, err := s.client.Exists(ctx, s.hashKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) SetUserName(ctx context.Context, id uuid.UUID, name string) error {
	return s.setField(ctx, id, "user_name", name)
}

func (s *RedisStore) SetResult(ctx context.Context, id uuid.UUID, kind models.ResultKind, text string) error {
	return s.setField(ctx, id, resultFieldPrefix+string(kind), text)
}

func (s *RedisStore) setField(ctx context.Context, id uuid.UUID, field, value string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.hashKey(id), field, value).Err()
}

func (s *RedisStore) AppendTurns(ctx context.Context, id uuid.UUID, turns ...models.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := s.exists(ctx, id); err != nil {
		return err
	}

	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		values = append(values, string(data))
	}

	histKey := s.historyKey(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, histKey, values...)
		pipe.Expire(ctx, histKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append chat turns: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, s.hashKey(id), s.historyKey(id)).Err()
}
