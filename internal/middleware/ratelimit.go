package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
)

// GameRateLimit limits wagers per user with a fixed Redis INCR/EXPIRE window.
// Requires Auth to run first. A nil client or a Redis error lets the request
// through.
func GameRateLimit(rdb redis.Cmdable, name string, maxGames int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rdb == nil || maxGames <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			userID := GetUserID(r.Context())
			if userID == uuid.Nil {
				response.Unauthorized(w, "Unauthorized")
				return
			}

			key := "game_rl:" + name + ":" + userID.String() + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()

			val, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.LogWarn(r.Context(), "game rate limiter unavailable", "error", err.Error())
				w.Header().Set("X-GameRateLimit-Error", "redis-error")
				next.ServeHTTP(w, r)
				return
			}
			if val == 1 {
				rdb.Expire(ctx, key, window)
			}

			remaining := int64(maxGames) - val
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-GameRateLimit-Limit", strconv.Itoa(maxGames))
			w.Header().Set("X-GameRateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if val > int64(maxGames) {
				RLBlocked.WithLabelValues("game:" + name).Inc()
				response.TooManyRequests(w, int(window.Seconds()))
				return
			}

			RLRequests.WithLabelValues("game:" + name).Inc()
			next.ServeHTTP(w, r)
		})
	}
}
