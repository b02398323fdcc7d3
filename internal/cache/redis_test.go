package cache

import (
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	t.Run("get_hit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := newRedisStoreWithClient(client)

		mock.ExpectGet("chartpulse:chart:abcd").SetVal("png-bytes")

		payload, ok := store.Get(BucketChart, "abcd", time.Hour)
		require.True(t, ok)
		assert.Equal(t, []byte("png-bytes"), payload)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get_miss_on_nil", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := newRedisStoreWithClient(client)

		mock.ExpectGet("chartpulse:data:missing").RedisNil()

		_, ok := store.Get(BucketData, "missing", time.Hour)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set_carries_bucket_ttl", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := newRedisStoreWithClient(client)

		mock.ExpectSet("chartpulse:analysis:abcd", []byte("text"), 30*time.Minute).SetVal("OK")

		err := store.Set(BucketAnalysis, "abcd", []byte("text"), 30*time.Minute)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := newRedisStoreWithClient(client)

		mock.ExpectDel("chartpulse:data:gone").SetVal(1)

		store.Delete(BucketData, "gone")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expiry_is_native", func(t *testing.T) {
		client, _ := redismock.NewClientMock()
		store := newRedisStoreWithClient(client)

		assert.Zero(t, store.SweepExpired(BucketData, time.Hour))
		assert.Zero(t, store.EnforceSizeCap(1024))
	})
}
