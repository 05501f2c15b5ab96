package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/domain/wager"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/metrics"
)

// Enqueuer schedules replay jobs.
type Enqueuer interface {
	EnqueueReplay(ctx context.Context, args ReplayPayoutArgs) error
}

// Resumer finishes a wager; implemented by wager.Engine.
type Resumer interface {
	Resume(ctx context.Context, wagerID uuid.UUID) (*wager.Result, error)
}

// StaleWagers finds wagers stuck before settled.
type StaleWagers interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]wager.Wager, error)
}

type Config struct {
	MaxAttempts int
	// StaleAfter is how long a wager may sit in debited or resolved
	// before the sweep opens an exception for it.
	StaleAfter time.Duration
	BatchSize  int
}

// Service records, lists and replays reconciliation exceptions. The API
// process uses it as the wager engine's FailureRecorder; the reconciler
// process runs Replay and Sweep.
type Service struct {
	repo     *Repository
	enqueuer Enqueuer
	rdb      redis.Cmdable
	resumer  Resumer
	stale    StaleWagers
	policy   database.RetryPolicy
	cfg      Config
}

func NewService(repo *Repository, enqueuer Enqueuer, rdb redis.Cmdable, policy database.RetryPolicy, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Service{repo: repo, enqueuer: enqueuer, rdb: rdb, policy: policy, cfg: cfg}
}

// SetResumer wires the wager engine for Replay and the stale wager source
// for Sweep.
func (s *Service) SetResumer(r Resumer, stale StaleWagers) {
	s.resumer = r
	s.stale = stale
}

var _ wager.FailureRecorder = (*Service)(nil)

// RecordFailure opens an exception, enqueues its replay and wakes the
// reconciler. Only the exception row is required to succeed: the sweep
// re-enqueues anything the queue or the wake-up missed.
func (s *Service) RecordFailure(ctx context.Context, f wager.PayoutFailure) error {
	var ex *Exception
	err := database.Retry(ctx, s.policy, "reconcile.record", func(ctx context.Context) error {
		var err error
		ex, err = s.repo.Create(ctx, &Exception{
			ID:        uuid.New(),
			WagerID:   f.WagerID,
			UserID:    f.UserID,
			BetAmount: f.BetAmount,
			WinAmount: f.WinAmount,
			SessionID: f.SessionID,
			Reason:    f.Reason,
		})
		return err
	})
	if err != nil {
		return err
	}

	metrics.ReconcileExceptions.WithLabelValues(string(StatusOpen)).Inc()
	logger.LogWarn(ctx, "reconciliation exception recorded",
		"exception_id", ex.ID.String(),
		"wager_id", ex.WagerID.String(),
		"user_id", ex.UserID.String(),
		"bet_amount", ex.BetAmount,
		"win_amount", ex.WinAmount,
		"session_id", ex.SessionID.String(),
	)

	s.schedule(ctx, ex)
	return nil
}

func (s *Service) schedule(ctx context.Context, ex *Exception) {
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueReplay(ctx, ReplayPayoutArgs{ExceptionID: ex.ID, WagerID: ex.WagerID}); err != nil {
			logger.LogError(ctx, err, "replay enqueue failed; sweep will retry", "exception_id", ex.ID.String())
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, WakeChannel, ex.ID.String()).Err(); err != nil {
			logger.LogWarn(ctx, "reconciler wake-up publish failed", "error", err.Error())
		}
	}
}

// Replay finishes the wager behind an exception. A resolved exception is
// a no-op. The returned error is the replay failure, for the job runner
// to retry; errExhausted marks the last allowed attempt.
func (s *Service) Replay(ctx context.Context, exceptionID uuid.UUID) error {
	if s.resumer == nil {
		return errors.New("reconcile: no wager resumer configured")
	}

	ex, err := s.repo.GetByID(ctx, exceptionID)
	if err != nil {
		return err
	}
	if ex.Status != StatusOpen {
		return nil
	}

	res, replayErr := s.resumer.Resume(ctx, ex.WagerID)
	if replayErr == nil {
		if err := s.repo.MarkResolved(ctx, ex.ID); err != nil {
			return fmt.Errorf("mark resolved: %w", err)
		}
		metrics.ReconcileExceptions.WithLabelValues(string(StatusResolved)).Inc()
		log.Info().
			Str("exception_id", ex.ID.String()).
			Str("wager_id", ex.WagerID.String()).
			Str("user_id", ex.UserID.String()).
			Int64("balance", res.Balance).
			Msg("Reconciliation exception resolved")
		return nil
	}

	status, err := s.repo.RecordAttempt(ctx, ex.ID, replayErr.Error(), s.cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("record attempt: %w (replay: %v)", err, replayErr)
	}
	log.Error().
		Err(replayErr).
		Str("exception_id", ex.ID.String()).
		Str("wager_id", ex.WagerID.String()).
		Str("user_id", ex.UserID.String()).
		Int64("bet_amount", ex.BetAmount).
		Int64("win_amount", ex.WinAmount).
		Str("session_id", ex.SessionID.String()).
		Str("status", string(status)).
		Msg("Reconciliation replay failed")

	if status == StatusFailed {
		metrics.ReconcileExceptions.WithLabelValues(string(StatusFailed)).Inc()
		return fmt.Errorf("%w: %v", errExhausted, replayErr)
	}
	return replayErr
}

var errExhausted = errors.New("replay attempts exhausted")

// Sweep opens exceptions for stale wagers, re-enqueues open exceptions
// that still have attempts left and refreshes the open gauge.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	if s.stale != nil && s.cfg.StaleAfter > 0 {
		stuck, err := s.stale.ListStale(ctx, time.Now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
		if err != nil {
			return 0, fmt.Errorf("list stale wagers: %w", err)
		}
		for _, w := range stuck {
			if _, err := s.repo.Create(ctx, &Exception{
				ID:        uuid.New(),
				WagerID:   w.ID,
				UserID:    w.UserID,
				BetAmount: w.BetAmount,
				WinAmount: w.WinAmount,
				SessionID: w.ID,
				Reason:    fmt.Sprintf("wager stuck in %s", w.State),
			}); err != nil {
				return 0, fmt.Errorf("open exception for wager %s: %w", w.ID, err)
			}
		}
	}

	open, err := s.repo.ListRetryable(ctx, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable: %w", err)
	}
	for i := range open {
		if s.enqueuer == nil {
			break
		}
		if err := s.enqueuer.EnqueueReplay(ctx, ReplayPayoutArgs{ExceptionID: open[i].ID, WagerID: open[i].WagerID}); err != nil {
			return 0, fmt.Errorf("enqueue replay: %w", err)
		}
	}

	count, err := s.repo.CountOpen(ctx)
	if err != nil {
		return len(open), err
	}
	metrics.ReconcileOpen.Set(float64(count))
	return len(open), nil
}

// List is the admin view of exceptions.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]Exception, int, error) {
	var (
		out   []Exception
		total int
	)
	err := database.Retry(ctx, s.policy, "reconcile.list", func(ctx context.Context) error {
		var err error
		out, total, err = s.repo.List(ctx, status, limit, offset)
		return err
	})
	return out, total, err
}

// Retry is the manual retry from the admin surface: a failed exception is
// reopened with fresh attempts and re-enqueued.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*Exception, error) {
	ex, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ex.Status == StatusResolved {
		return ex, nil
	}
	if ex.Status == StatusFailed {
		if err := s.repo.Reopen(ctx, id); err != nil {
			return nil, err
		}
		ex.Status = StatusOpen
		ex.Attempts = 0
	}
	s.schedule(ctx, ex)
	return ex, nil
}
