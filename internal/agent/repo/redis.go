// Package repo provides the Redis-backed session store.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsight-core-v1/server/internal/agent/model"
	errx "github.com/finsight-core-v1/server/internal/core/error"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

const sessionKeyPrefix = "session:"

// listScanCount bounds one SCAN page when listing sessions.
const listScanCount = 100

type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s%s:turns", sessionKeyPrefix, sessionID)
}

func (r *RedisSessionRepository) AppendTurn(ctx context.Context, sessionID string, turn *model.Turn) error {
	b, err := json.Marshal(turn)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := r.sessionKey(sessionID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on session key")
		}
	}
	return nil
}

func (r *RedisSessionRepository) LoadHistory(ctx context.Context, sessionID string) (*model.SessionHistory, error) {
	key := r.sessionKey(sessionID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return &model.SessionHistory{SessionID: sessionID, Turns: []*model.Turn{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session history from redis")
		return nil, errx.WrapRedis(err)
	}

	turns := make([]*model.Turn, 0, len(rows))
	for i, s := range rows {
		var t model.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		turns = append(turns, &t)
	}
	return &model.SessionHistory{SessionID: sessionID, Turns: turns}, nil
}

func (r *RedisSessionRepository) ClearHistory(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionRepository) TurnCount(ctx context.Context, sessionID string) (int, error) {
	key := r.sessionKey(sessionID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get turn count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

// ListSessions scans stored session keys and builds a preview from the first
// user turn of each. Scanning requires a full client, not just Cmdable, so
// repositories built over pipelines return an empty list.
func (r *RedisSessionRepository) ListSessions(ctx context.Context, limit int) ([]model.SessionInfo, error) {
	scanner, ok := r.rdb.(interface {
		Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	})
	if !ok {
		return nil, nil
	}

	var infos []model.SessionInfo
	var cursor uint64
	for {
		keys, next, err := scanner.Scan(ctx, cursor, sessionKeyPrefix+"*:turns", listScanCount).Result()
		if err != nil {
			logx.Error().Err(err).Msg("failed to scan session keys")
			return nil, errx.WrapRedis(err)
		}
		for _, key := range keys {
			if limit > 0 && len(infos) >= limit {
				return infos, nil
			}
			info, err := r.sessionInfo(ctx, key)
			if err != nil {
				logx.Warn().Err(err).Str("key", key).Msg("skipping unreadable session")
				continue
			}
			infos = append(infos, info)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return infos, nil
}

func (r *RedisSessionRepository) sessionInfo(ctx context.Context, key string) (model.SessionInfo, error) {
	sessionID := strings.TrimSuffix(strings.TrimPrefix(key, sessionKeyPrefix), ":turns")

	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return model.SessionInfo{}, err
	}

	preview := ""
	if first, err := r.rdb.LIndex(ctx, key, 0).Result(); err == nil {
		var t model.Turn
		if json.Unmarshal([]byte(first), &t) == nil {
			preview = previewText(t.Content)
		}
	}

	return model.SessionInfo{
		SessionID: sessionID,
		Preview:   preview,
		TurnCount: int(n),
	}, nil
}

func previewText(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return s
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
