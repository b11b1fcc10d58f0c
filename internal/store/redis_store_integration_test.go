//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
)

type RedisStoreSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *redis.Client
	store     *RedisBioCodeStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	url, err := container.ConnectionString(ctx)
	s.Require().NoError(err)
	opts, err := redis.ParseURL(url)
	s.Require().NoError(err)

	s.client = redis.NewClient(opts)
	s.Require().NoError(s.client.Ping(ctx).Err())
	s.store = NewRedisBioCodeStore(s.client, "twin-test", time.Minute, zap.NewNop())
}

func (s *RedisStoreSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisStoreSuite) TestSaveLoadRoundTrip() {
	ctx := context.Background()
	seq := sampleSequence(9)
	s.Require().NoError(s.store.Save(ctx, seq))

	got, err := s.store.Load(ctx, 9)
	s.Require().NoError(err)
	s.Equal(seq.Level3.Word, got.Level3.Word)
	s.Equal(seq.Level3.Feasibility, got.Level3.Feasibility)
	s.Require().Len(got.Level1, len(seq.Level1))
	for i := range seq.Level1 {
		s.Equal(seq.Level1[i].Word, got.Level1[i].Word)
		s.Equal(seq.Level1[i].ID, got.Level1[i].ID)
	}
	s.Len(got.Level2, len(seq.Level2))

	ttl, err := s.client.TTL(ctx, s.store.key(9)).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestLoadMissing() {
	_, err := s.store.Load(context.Background(), 1234)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RedisStoreSuite) TestLoadCorruptWordIsCodecError() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, sampleSequence(2)))
	s.Require().NoError(s.client.HSet(ctx, s.store.key(2), fieldLevel3, "0xNOTHEX").Err())

	_, err := s.store.Load(ctx, 2)
	s.Require().Error(err)
	s.True(twinerrors.IsCodecError(err))
}
