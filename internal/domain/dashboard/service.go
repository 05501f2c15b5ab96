package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cacheKey = "dashboard:stats"

// StatsSource produces fresh dashboard figures
type StatsSource interface {
	GetStats(ctx context.Context) (*Stats, error)
}

// Service provides dashboard statistics, cached briefly in redis so the
// admin panel polling does not rescan the ledger on every request.
type Service struct {
	source StatsSource
	rdb    redis.Cmdable
	ttl    time.Duration
}

// NewService creates dashboard service. rdb may be nil.
func NewService(source StatsSource, rdb redis.Cmdable, ttl time.Duration) *Service {
	return &Service{source: source, rdb: rdb, ttl: ttl}
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	if s.rdb != nil && s.ttl > 0 {
		raw, err := s.rdb.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var cached Stats
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Warn().Err(err).Msg("dashboard cache read failed")
		}
	}

	stats, err := s.source.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil && s.ttl > 0 {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.rdb.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
				log.Warn().Err(err).Msg("dashboard cache write failed")
			}
		}
	}
	return stats, nil
}
