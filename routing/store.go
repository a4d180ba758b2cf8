package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Store is where the authoritative routing tables live.
type Store interface {
	// Load returns the table of coll or nil if coll has none.
	Load(ctx context.Context, coll string) (*Table, error)
	Save(ctx context.Context, t *Table) error
	Delete(ctx context.Context, coll string) error
	List(ctx context.Context) ([]string, error)
}

type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*Table
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*Table)}
}

func (m *MemoryStore) Load(_ context.Context, coll string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[coll]; ok {
		return t.Copy(), nil
	}
	return nil, nil
}

func (m *MemoryStore) Save(_ context.Context, t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Collection] = t.Copy()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, coll string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, coll)
	return nil
}

func (m *MemoryStore) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RedisStore keeps each table as JSON under prefix + collection name.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "docpipe:routing:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Load(ctx context.Context, coll string) (*Table, error) {
	b, err := r.client.Get(ctx, r.prefix+coll).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RedisStore) Save(ctx context.Context, t *Table) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+t.Collection, b, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context, coll string) error {
	return r.client.Del(ctx, r.prefix+coll).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
