package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog/log"
)

// ReplayPayoutWorker runs replay_payout jobs.
type ReplayPayoutWorker struct {
	river.WorkerDefaults[ReplayPayoutArgs]
	svc *Service
}

func NewReplayPayoutWorker(svc *Service) *ReplayPayoutWorker {
	return &ReplayPayoutWorker{svc: svc}
}

func (w *ReplayPayoutWorker) Work(ctx context.Context, job *river.Job[ReplayPayoutArgs]) error {
	err := w.svc.Replay(ctx, job.Args.ExceptionID)
	if errors.Is(err, errExhausted) || errors.Is(err, ErrExceptionNotFound) {
		return river.JobCancel(err)
	}
	return err
}

func (w *ReplayPayoutWorker) Timeout(*river.Job[ReplayPayoutArgs]) time.Duration {
	return 30 * time.Second
}

// RiverEnqueuer inserts replay jobs through a river client. The API
// process uses an insert-only client.
type RiverEnqueuer struct {
	client *river.Client[pgx.Tx]
}

func NewRiverEnqueuer(client *river.Client[pgx.Tx]) *RiverEnqueuer {
	return &RiverEnqueuer{client: client}
}

func (e *RiverEnqueuer) EnqueueReplay(ctx context.Context, args ReplayPayoutArgs) error {
	_, err := e.client.Insert(ctx, args, nil)
	return err
}

// RunSweeper sweeps every interval and whenever a wake-up arrives on
// WakeChannel, until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, rdb *redis.Client, interval time.Duration) {
	var wake <-chan *redis.Message
	if rdb != nil {
		sub := rdb.Subscribe(ctx, WakeChannel)
		defer sub.Close()
		wake = sub.Channel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func(trigger string) {
		n, err := s.Sweep(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("trigger", trigger).Msg("Reconciliation sweep failed")
			}
			return
		}
		if n > 0 {
			log.Info().Int("enqueued", n).Str("trigger", trigger).Msg("Reconciliation sweep")
		}
	}

	sweep("startup")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep("interval")
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			sweep("wake")
		}
	}
}
