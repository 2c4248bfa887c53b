package cooldown

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngmaloney/dive-relay/internal/database"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "cooldown.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	out := map[string]Store{
		"memory": NewMemory(),
		"sqlite": NewSQLite(db),
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client, err := database.OpenRedis(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 15)
		require.NoError(t, err)
		t.Cleanup(func() {
			client.Del(context.Background(), redisKey("slope"), redisKey("accident"))
			client.Close()
		})
		client.Del(context.Background(), redisKey("slope"), redisKey("accident"))
		out["redis"] = NewRedis(client)
	}
	return out
}

func TestStoreAllow(t *testing.T) {
	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	window := 120 * time.Minute

	steps := []struct {
		name   string
		region string
		item   string
		at     time.Duration
		window time.Duration
		want   bool
	}{
		{"first alert", "삼척시", "갈남해수욕장", 0, window, true},
		{"same pair inside window", "삼척시", "갈남해수욕장", 30 * time.Minute, window, false},
		{"different item", "삼척시", "장호항", 31 * time.Minute, window, true},
		{"previous pair is forgotten", "삼척시", "갈남해수욕장", 32 * time.Minute, window, true},
		{"same pair again", "삼척시", "갈남해수욕장", 60 * time.Minute, window, false},
		{"window elapsed", "삼척시", "갈남해수욕장", 32*time.Minute + window, window, true},
		{"zero window", "삼척시", "갈남해수욕장", 32*time.Minute + window, 0, true},
	}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, step := range steps {
				got, err := store.Allow(ctx, "slope", step.region, step.item, step.window, base.Add(step.at))
				require.NoError(t, err, step.name)
				assert.Equal(t, step.want, got, step.name)
			}

			last, ok, err := store.Last(ctx, "slope")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "갈남해수욕장", last.Item)
			assert.True(t, last.At.Equal(base.Add(32*time.Minute+window)))

			// kinds are independent
			got, err := store.Allow(ctx, "accident", "삼척시", "갈남해수욕장", window, base)
			require.NoError(t, err)
			assert.True(t, got)
		})
	}
}

func TestStoreLastEmpty(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Last(context.Background(), "accident")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEntryTTL(t *testing.T) {
	assert.Equal(t, 240*time.Minute, entryTTL(120*time.Minute))
	assert.Equal(t, idleTTL, entryTTL(0))
	assert.Equal(t, idleTTL, entryTTL(-time.Minute))
}

func TestRedisEntriesExpire(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := database.OpenRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 15)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Del(ctx, redisKey("tide"))
		client.Close()
	})

	ok, err := NewRedis(client).Allow(ctx, "tide", "삼척시", "07:06", 30*time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ttl, err := client.PTTL(ctx, redisKey("tide")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)
}
