package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

const (
	fieldLevel3      = "level3"
	fieldFeasibility = "feasibility"
	fieldNodeOrder   = "l1_order"
	fieldGeneratedAt = "generated_at"
	prefixLevel1     = "l1:"
	prefixLevel2     = "l2:"
)

// RedisBioCodeStore keeps one hash of hex words per mission day
type RedisBioCodeStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// ConnectRedis opens a client and verifies the connection
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, twinerrors.Unavailable("failed to connect to Redis at "+addr, err)
	}
	return client, nil
}

// NewRedisBioCodeStore creates a Redis-backed store. A zero ttl keeps keys forever.
func NewRedisBioCodeStore(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisBioCodeStore {
	return &RedisBioCodeStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *RedisBioCodeStore) key(day uint16) string {
	return fmt.Sprintf("%s:biocode:%05d", s.keyPrefix, day)
}

// Save implements BioCodeStore
func (s *RedisBioCodeStore) Save(ctx context.Context, seq *biocode.Sequence) error {
	ids := make([]string, 0, len(seq.Level1))
	fields := map[string]interface{}{
		fieldLevel3:      seq.Level3.Hex,
		fieldFeasibility: strconv.FormatFloat(seq.Level3.Feasibility, 'f', -1, 64),
		fieldGeneratedAt: seq.GeneratedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, e := range seq.Level1 {
		ids = append(ids, string(e.ID))
		fields[prefixLevel1+string(e.ID)] = e.Hex
	}
	for _, m := range seq.Level2 {
		fields[prefixLevel2+string(m.Capability)] = m.Hex
	}
	fields[fieldNodeOrder] = strings.Join(ids, ",")

	key := s.key(seq.MissionDay)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save bio-code for day %d: %w", seq.MissionDay, err)
	}
	s.logger.Debug("Bio-code cached", zap.String("key", key), zap.Int("fields", len(fields)))
	return nil
}

// Load implements BioCodeStore. Malformed stored words surface as codec errors.
func (s *RedisBioCodeStore) Load(ctx context.Context, day uint16) (*biocode.Sequence, error) {
	fields, err := s.client.HGetAll(ctx, s.key(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load bio-code for day %d: %w", day, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	seq := &biocode.Sequence{MissionDay: day}
	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldGeneratedAt]); err == nil {
		seq.GeneratedAt = ts
	}

	if order := fields[fieldNodeOrder]; order != "" {
		for _, id := range strings.Split(order, ",") {
			hex := fields[prefixLevel1+id]
			word, err := biocode.ParseHex(biocode.LevelNode, hex)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", id, err)
			}
			d := biocode.DecodeNode(word)
			seq.Level1 = append(seq.Level1, biocode.NodeEntry{
				ID:     model.NodeID(id),
				Health: d.Health,
				Status: d.Status,
				Word:   word,
				Hex:    hex,
			})
		}
	}

	for _, c := range model.Capabilities {
		hex, ok := fields[prefixLevel2+string(c)]
		if !ok {
			continue
		}
		word, err := biocode.ParseHex(biocode.LevelModule, hex)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", c, err)
		}
		d := biocode.DecodeModule(uint32(word))
		seq.Level2 = append(seq.Level2, biocode.ModuleEntry{
			Capability: c,
			Health:     float64(d.Health),
			Trend:      d.Trend,
			Word:       uint32(word),
			Hex:        hex,
		})
	}

	word, err := biocode.ParseHex(biocode.LevelMission, fields[fieldLevel3])
	if err != nil {
		return nil, fmt.Errorf("mission word: %w", err)
	}
	mission := biocode.DecodeMission(word)
	feasibility, err := strconv.ParseFloat(fields[fieldFeasibility], 64)
	if err != nil {
		feasibility = mission.Feasibility
	}
	seq.Level3 = biocode.MissionEntry{
		MissionDay:   mission.MissionDay,
		Feasibility:  feasibility,
		Action:       mission.Action,
		SafetyMargin: mission.SafetyMargin,
		Word:         word,
		Hex:          fields[fieldLevel3],
	}
	return seq, nil
}

// Ping checks the Redis connection
func (s *RedisBioCodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisBioCodeStore) Close() error {
	return s.client.Close()
}
