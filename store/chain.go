package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoPending is returned by Take and Peek when no chain handoff is queued.
var ErrNoPending = errors.New("no pending chain handoff")

// PendingChain is one recorded handoff: the workflow a finished run asked to
// start next, and the prompt to seed it with.
type PendingChain struct {
	Workflow    string    `json:"workflow"`
	Prompt      string    `json:"prompt,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ChainQueue holds at most one pending handoff per session. Put replaces any
// existing entry; Take removes the entry it returns.
type ChainQueue interface {
	Put(ctx context.Context, p PendingChain) error
	Take(ctx context.Context) (PendingChain, error)
	Peek(ctx context.Context) (PendingChain, error)
	Clear(ctx context.Context) error
}

// FileChain keeps the handoff in a JSON file next to the session's other
// state. Writes go through a temp file and rename.
type FileChain struct {
	path string
}

// NewFileChain builds a file-backed queue at the given path.
func NewFileChain(path string) *FileChain {
	return &FileChain{path: path}
}

func (q *FileChain) Put(ctx context.Context, p PendingChain) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("chain queue: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".chain.*.tmp")
	if err != nil {
		return fmt.Errorf("chain queue: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("chain queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chain queue: %w", err)
	}
	return os.Rename(tmp.Name(), q.path)
}

func (q *FileChain) Peek(ctx context.Context) (PendingChain, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return PendingChain{}, ErrNoPending
	}
	if err != nil {
		return PendingChain{}, fmt.Errorf("chain queue: %w", err)
	}
	var p PendingChain
	if err := json.Unmarshal(data, &p); err != nil {
		return PendingChain{}, fmt.Errorf("chain queue: %w", err)
	}
	return p, nil
}

func (q *FileChain) Take(ctx context.Context) (PendingChain, error) {
	p, err := q.Peek(ctx)
	if err != nil {
		return PendingChain{}, err
	}
	if err := os.Remove(q.path); err != nil {
		return PendingChain{}, fmt.Errorf("chain queue: %w", err)
	}
	return p, nil
}

func (q *FileChain) Clear(ctx context.Context) error {
	err := os.Remove(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RedisChain keeps the handoff under one key, for sessions shared between
// processes.
type RedisChain struct {
	client *redis.Client
	key    string
}

// NewRedisChain builds a redis-backed queue for the given session.
func NewRedisChain(client *redis.Client, session string) *RedisChain {
	return &RedisChain{client: client, key: "loom:chain:" + session}
}

func (q *RedisChain) Put(ctx context.Context, p PendingChain) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.key, data, 0).Err()
}

func (q *RedisChain) Peek(ctx context.Context) (PendingChain, error) {
	return q.decode(q.client.Get(ctx, q.key))
}

// Take fetches and deletes in one round trip, so two runners sharing a
// session cannot both consume the same handoff.
func (q *RedisChain) Take(ctx context.Context) (PendingChain, error) {
	return q.decode(q.client.GetDel(ctx, q.key))
}

func (q *RedisChain) decode(cmd *redis.StringCmd) (PendingChain, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingChain{}, ErrNoPending
	}
	if err != nil {
		return PendingChain{}, fmt.Errorf("chain queue: %w", err)
	}
	var p PendingChain
	if err := json.Unmarshal(data, &p); err != nil {
		return PendingChain{}, fmt.Errorf("chain queue: %w", err)
	}
	return p, nil
}

func (q *RedisChain) Clear(ctx context.Context) error {
	return q.client.Del(ctx, q.key).Err()
}
