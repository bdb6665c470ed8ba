package threads

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/internal/database"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 NewThread / ValidateID
// =============================================================================

func TestNewThread_Defaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	thread, err := NewThread(SaveRequest{Name: "chat"}, now)
	require.NoError(t, err)

	assert.Equal(t, "1709287200", thread.ID)
	assert.Equal(t, "chat", thread.Name)
	assert.Equal(t, "2024-03-01T10:00:00Z", thread.CreatedAt)
	assert.Equal(t, thread.CreatedAt, thread.UpdatedAt)
	assert.Equal(t, DefaultModel, thread.Model)
	assert.NotNil(t, thread.Messages)
	assert.Empty(t, thread.Messages)
}

func TestNewThread_Explicit(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	thread, err := NewThread(SaveRequest{
		ID:      "abc",
		Name:    "chat",
		SavedAt: "2024-02-01T08:00:00Z",
		Model:   "deepseek-r1:7b",
		Data:    []map[string]any{{"role": "user", "content": "hi"}},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "abc", thread.ID)
	assert.Equal(t, "2024-02-01T08:00:00Z", thread.CreatedAt)
	assert.Equal(t, "2024-03-01T10:00:00Z", thread.UpdatedAt)
	assert.Equal(t, "deepseek-r1:7b", thread.Model)
	assert.Len(t, thread.Messages, 1)
}

func TestValidateID(t *testing.T) {
	valid := []string{"1709287200", "abc-DEF_1", "会话"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	invalid := []string{"", "../etc/passwd", "a/b", `a\b`, "..", "c:x", "a\nb", strings.Repeat("x", maxIDLength+1)}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}

	_, err := NewThread(SaveRequest{ID: "../x"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestCreatedScore(t *testing.T) {
	assert.InDelta(t, 1709287200, createdScore("2024-03-01T10:00:00Z"), 0.001)
	assert.Greater(t, createdScore("2024-03-01T10:00:00.5"), float64(1709287200))
	assert.Equal(t, float64(0), createdScore("yesterday"))
}

// =============================================================================
// 🧪 所有后端共享的行为测试
// =============================================================================

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "threads"), zap.NewNop())
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", zap.NewNop())
		},
		"sqlite": func(t *testing.T) Store {
			return newSQLiteStore(t)
		},
	}
}

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	pool, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "threads.db"),
	}, zap.NewNop())
	require.NoError(t, err)

	s, err := NewSQLStore(pool, zap.NewNop())
	require.NoError(t, err)
	return s
}

func sampleThread(id, name, created string) *Thread {
	return &Thread{
		ID:        id,
		Name:      name,
		CreatedAt: created,
		UpdatedAt: created,
		Model:     "deepseek-r1:1.5b",
		Messages: []map[string]any{
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi there"},
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			defer store.Close()

			require.NoError(t, store.Ping(ctx))

			list, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			require.NoError(t, store.Save(ctx, sampleThread("1", "first", "2024-01-01T00:00:00Z")))
			require.NoError(t, store.Save(ctx, sampleThread("2", "second", "2024-03-01T00:00:00Z")))
			require.NoError(t, store.Save(ctx, sampleThread("3", "third", "2024-02-01T00:00:00Z")))

			got, err := store.Get(ctx, "2")
			require.NoError(t, err)
			assert.Equal(t, "second", got.Name)
			assert.Equal(t, "deepseek-r1:1.5b", got.Model)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, "hi there", got.Messages[1]["content"])

			list, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{"2", "3", "1"}, []string{list[0].ID, list[1].ID, list[2].ID})
			assert.Equal(t, Summary{ID: "2", Name: "second", CreatedAt: "2024-03-01T00:00:00Z"}, list[0])

			// 覆盖写
			updated := sampleThread("2", "renamed", "2024-03-01T00:00:00Z")
			require.NoError(t, store.Save(ctx, updated))
			got, err = store.Get(ctx, "2")
			require.NoError(t, err)
			assert.Equal(t, "renamed", got.Name)

			list, err = store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 3)

			require.NoError(t, store.Delete(ctx, "2"))
			_, err = store.Get(ctx, "2")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, "2"), ErrNotFound)

			list, err = store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 2)
		})
	}
}

func TestStore_UnknownAndInvalidIDs(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			defer store.Close()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)

			err = store.Save(ctx, sampleThread("../escape", "x", "2024-01-01T00:00:00Z"))
			assert.True(t, errors.Is(err, ErrInvalidID))
		})
	}
}

func TestStore_EmptyMessagesRoundTrip(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			defer store.Close()

			thread, err := NewThread(SaveRequest{ID: "empty", Name: "nothing yet"}, time.Now())
			require.NoError(t, err)
			require.NoError(t, store.Save(ctx, thread))

			got, err := store.Get(ctx, "empty")
			require.NoError(t, err)
			assert.NotNil(t, got.Messages)
			assert.Empty(t, got.Messages)
		})
	}
}

// =============================================================================
// 🧪 Factory
// =============================================================================

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		s, err := NewStore(config.ThreadsConfig{Driver: DriverFile, Dir: filepath.Join(dir, "t")}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &FileStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := NewStore(config.ThreadsConfig{
			Driver: DriverRedis,
			Redis:  config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"},
		}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewStore(config.ThreadsConfig{Driver: DriverRedis, Redis: config.RedisConfig{Addr: addr}}, nil)
		assert.ErrorContains(t, err, "failed to connect to Redis")
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewStore(config.ThreadsConfig{
			Driver:   DriverSQLite,
			Database: config.DatabaseConfig{Name: filepath.Join(dir, "threads.db")},
		}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLStore{}, s)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewStore(config.ThreadsConfig{Driver: "mongo"}, nil)
		assert.ErrorContains(t, err, "unsupported thread store driver")
	})
}
