package wager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/metrics"
)

// FailureRecorder takes over a wager whose settlement failed after the debit.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f PayoutFailure) error
}

// Config is the betting policy. A zero MaxBet leaves only the overflow
// bound in place.
type Config struct {
	MinBet  int64
	MaxBet  int64
	BetStep int64
}

// Engine drives wagers through Placed, Debited, Resolved and Settled. The
// debit, the session and the payout are separate transactions; a wager
// that stops between them is handed to the FailureRecorder and finished
// later by Resume.
type Engine struct {
	repo     *Repository
	ledger   *ledger.Service
	recorder FailureRecorder
	cfg      Config
}

func NewEngine(repo *Repository, ledgerSvc *ledger.Service, cfg Config) *Engine {
	return &Engine{repo: repo, ledger: ledgerSvc, cfg: cfg}
}

// SetRecorder wires reconciliation. Without one, failures are only logged.
func (e *Engine) SetRecorder(r FailureRecorder) {
	e.recorder = r
}

// Play evaluates a bet with a game evaluator and settles it.
func (e *Engine) Play(ctx context.Context, userID uuid.UUID, betAmount int64, ev Evaluator) (*Result, error) {
	if err := e.checkBet(betAmount); err != nil {
		return nil, err
	}
	outcome, err := ev.Evaluate(betAmount)
	if err != nil {
		return nil, err
	}
	return e.Settle(ctx, userID, ev.Game(), betAmount, outcome.Won, outcome.WinAmount, outcome.Details)
}

// Settle debits the stake, records the session and pays out a win for an
// outcome decided elsewhere.
func (e *Engine) Settle(ctx context.Context, userID uuid.UUID, game string, betAmount int64, won bool, winAmount int64, details map[string]interface{}) (*Result, error) {
	game = strings.ToLower(strings.TrimSpace(game))
	if game == "" {
		return nil, fmt.Errorf("%w: game is required", ErrInvalidBet)
	}
	if err := e.checkBet(betAmount); err != nil {
		return nil, err
	}
	if won && winAmount <= 0 {
		return nil, fmt.Errorf("%w: a win needs a positive payout", ErrInvalidBet)
	}
	if !won && winAmount != 0 {
		return nil, fmt.Errorf("%w: a loss pays nothing", ErrInvalidBet)
	}

	raw, err := json.Marshal(detailsOrEmpty(details))
	if err != nil {
		return nil, fmt.Errorf("%w: details: %v", ErrInvalidBet, err)
	}

	w := &Wager{
		ID:        uuid.New(),
		UserID:    userID,
		Game:      game,
		BetAmount: betAmount,
		State:     StatePlaced,
		Won:       won,
		WinAmount: winAmount,
		Details:   types.JSONText(raw),
	}

	balance, err := e.debit(ctx, w)
	if err != nil {
		return nil, err
	}

	res, err := e.complete(ctx, w.ID)
	if err != nil {
		e.fail(ctx, w, err)
		out := resultOf(w)
		out.Balance = balance
		out.ReconciliationPending = true
		return out, nil
	}
	return res, nil
}

// Resume finishes a wager left in debited or resolved. It is idempotent:
// a settled wager is returned as is.
func (e *Engine) Resume(ctx context.Context, wagerID uuid.UUID) (*Result, error) {
	return e.complete(ctx, wagerID)
}

func (e *Engine) checkBet(betAmount int64) error {
	if betAmount <= 0 || betAmount < e.cfg.MinBet {
		return fmt.Errorf("%w: minimum bet is %d", ErrInvalidBet, e.cfg.MinBet)
	}
	if e.cfg.MaxBet > 0 && betAmount > e.cfg.MaxBet {
		return fmt.Errorf("%w: maximum bet is %d", ErrInvalidBet, e.cfg.MaxBet)
	}
	if e.cfg.BetStep > 1 && betAmount%e.cfg.BetStep != 0 {
		return fmt.Errorf("%w: bets move in steps of %d", ErrInvalidBet, e.cfg.BetStep)
	}
	return nil
}

// debit is Placed to Debited: the stake leaves the account and the wager
// row, outcome included, commits with it.
func (e *Engine) debit(ctx context.Context, w *Wager) (int64, error) {
	m := ledger.Mutation{
		UserID: w.UserID,
		Amount: -w.BetAmount,
		Meta: ledger.EntryMeta{
			ID:          uuid.New(),
			Kind:        ledger.KindBet,
			Description: fmt.Sprintf("Bet on %s", w.Game),
			ExternalRef: w.ID.String(),
		},
	}

	var res *ledger.Result
	err := e.ledger.RunTx(ctx, "wager.debit", func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		if res, err = e.ledger.Store().ApplyEntryTx(ctx, tx, m); err != nil {
			return err
		}
		w.State = StateDebited
		return e.repo.CreateTx(ctx, tx, w)
	})
	if errors.Is(err, ledger.ErrInsufficientBalance) || errors.Is(err, ledger.ErrAccountNotFound) {
		w.State = StatePlaced
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		w.State = StatePlaced
		return 0, err
	}

	e.ledger.Committed(ctx, res)
	return res.Balance, nil
}

// complete moves a debited wager to resolved (session recorded, losses
// counted and settled), then pays a win and settles it.
func (e *Engine) complete(ctx context.Context, wagerID uuid.UUID) (*Result, error) {
	var (
		w       *Wager
		settled bool
	)
	err := e.ledger.RunTx(ctx, "wager.resolve", func(ctx context.Context, tx *sqlx.Tx) error {
		settled = false
		cur, err := e.repo.LockTx(ctx, tx, wagerID)
		if err != nil {
			return err
		}
		if cur.State == StateDebited {
			if err := e.repo.RecordSessionTx(ctx, tx, cur); err != nil {
				return err
			}
			next := StateResolved
			if !cur.Won {
				if err := e.ledger.Store().BumpCountersTx(ctx, tx, cur.UserID, ledger.Counters{Lost: cur.BetAmount}); err != nil {
					return err
				}
				next = StateSettled
			}
			if err := e.repo.SetStateTx(ctx, tx, cur.ID, next); err != nil {
				return err
			}
			cur.State = next
			settled = next == StateSettled
		}
		w = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled {
		metrics.WagersSettled.WithLabelValues(w.Game, ResultLose).Inc()
	}

	var payout *ledger.Result
	if w.State == StateResolved {
		m := ledger.Mutation{
			UserID: w.UserID,
			Amount: w.WinAmount,
			Meta: ledger.EntryMeta{
				ID:          uuid.New(),
				Kind:        ledger.KindPayout,
				Description: fmt.Sprintf("Payout on %s", w.Game),
				ExternalRef: w.ID.String(),
			},
			Counters: ledger.Counters{Won: w.WinAmount},
		}
		err := e.ledger.RunTx(ctx, "wager.payout", func(ctx context.Context, tx *sqlx.Tx) error {
			payout = nil
			cur, err := e.repo.LockTx(ctx, tx, w.ID)
			if err != nil {
				return err
			}
			if cur.State != StateResolved {
				return nil
			}
			if payout, err = e.ledger.Store().ApplyEntryTx(ctx, tx, m); err != nil {
				return err
			}
			return e.repo.SetStateTx(ctx, tx, cur.ID, StateSettled)
		})
		if err != nil {
			return nil, err
		}
		w.State = StateSettled
		if payout != nil {
			e.ledger.Committed(ctx, payout)
			metrics.WagersSettled.WithLabelValues(w.Game, ResultWin).Inc()
		}
	}

	out := resultOf(w)
	if payout != nil {
		out.Balance = payout.Balance
	} else if out.Balance, err = e.ledger.GetBalance(ctx, w.UserID); err != nil {
		return nil, err
	}

	logger.LogInfo(ctx, "wager settled",
		"wager_id", w.ID.String(),
		"user_id", w.UserID.String(),
		"game", w.Game,
		"bet_amount", w.BetAmount,
		"win_amount", w.WinAmount,
		"balance", out.Balance,
	)
	return out, nil
}

// fail hands a debited wager to reconciliation. It never drops the
// failure: if recording fails too, the error log carries what a manual
// replay needs.
func (e *Engine) fail(ctx context.Context, w *Wager, cause error) {
	f := PayoutFailure{
		WagerID:   w.ID,
		UserID:    w.UserID,
		BetAmount: w.BetAmount,
		WinAmount: w.WinAmount,
		SessionID: w.ID,
		Reason:    cause.Error(),
	}

	event := log.Error().
		Err(cause).
		Str("request_id", logger.RequestID(ctx)).
		Str("wager_id", w.ID.String()).
		Str("user_id", w.UserID.String()).
		Int64("bet_amount", w.BetAmount).
		Int64("win_amount", w.WinAmount).
		Str("session_id", w.ID.String())

	if e.recorder == nil {
		event.Msg("Wager settlement failed after debit; no reconciliation recorder")
		return
	}
	if err := e.recorder.RecordFailure(context.WithoutCancel(ctx), f); err != nil {
		event.AnErr("record_error", err).Msg("Wager settlement failed after debit and could not be recorded")
		return
	}
	event.Msg("Wager settlement failed after debit; reconciliation recorded")
}

// Sessions lists the user's game history.
func (e *Engine) Sessions(ctx context.Context, userID uuid.UUID, game string, limit, offset int) ([]Session, error) {
	var out []Session
	err := database.Retry(ctx, e.ledger.Policy(), "wager.sessions", func(ctx context.Context) error {
		var err error
		out, err = e.repo.ListSessions(ctx, userID, game, limit, offset)
		return err
	})
	return out, err
}

func resultOf(w *Wager) *Result {
	return &Result{
		SessionID: w.ID,
		Game:      w.Game,
		BetAmount: w.BetAmount,
		Won:       w.Won,
		WinAmount: w.WinAmount,
		Details:   w.Details,
		State:     w.State,
	}
}

func detailsOrEmpty(d map[string]interface{}) map[string]interface{} {
	if d == nil {
		return map[string]interface{}{}
	}
	return d
}
