package deposit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/payment"
)

// Service turns confirmed external payments into credits.
type Service struct {
	ledger        *ledger.Service
	verifier      payment.Verifier
	plans         map[string]int64
	webhookSecret string
	now           func() time.Time
}

func NewService(ledgerSvc *ledger.Service, verifier payment.Verifier, plans map[string]int64, webhookSecret string) *Service {
	return &Service{
		ledger:        ledgerSvc,
		verifier:      verifier,
		plans:         plans,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// Plans lists the configured deposit plans ordered by amount.
func (s *Service) Plans() []Plan {
	out := make([]Plan, 0, len(s.plans))
	for amount, credits := range s.plans {
		out = append(out, Plan{Amount: amount, Credits: credits})
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := decimal.NewFromString(out[i].Amount)
		b, _ := decimal.NewFromString(out[j].Amount)
		return a.LessThan(b)
	})
	return out
}

// ConfirmDeposit credits credits to userID once per externalRef and adds
// currencyAmount to the account's total deposited.
func (s *Service) ConfirmDeposit(ctx context.Context, userID uuid.UUID, externalRef string, credits int64, currencyAmount decimal.Decimal) (*Confirmation, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, ErrInvalidExternalReference
	}
	if credits <= 0 || currencyAmount.IsNegative() {
		return nil, ledger.ErrInvalidAmount
	}

	currency := currencyAmount.Round(2)
	res, err := s.ledger.Apply(ctx, ledger.Mutation{
		UserID: userID,
		Amount: credits,
		Meta: ledger.EntryMeta{
			Kind:           ledger.KindDeposit,
			Description:    fmt.Sprintf("Deposit of %s - %d credits", currency.StringFixed(2), credits),
			ExternalRef:    externalRef,
			CurrencyAmount: &currency,
		},
		Counters: ledger.Counters{Deposited: currency},
	})
	if errors.Is(err, ledger.ErrReferenceConflict) {
		return nil, fmt.Errorf("%w: reference %s belongs to another deposit", ErrInvalidExternalReference, externalRef)
	}
	if err != nil {
		return nil, err
	}

	if res.Replayed {
		logger.LogInfo(ctx, "duplicate deposit confirmation ignored", "user_id", userID.String(), "external_ref", externalRef)
	}

	out := &Confirmation{
		EntryID:        res.Entry.ID,
		Credits:        res.Entry.Amount,
		CurrencyAmount: currency,
		Balance:        res.Balance,
		Replayed:       res.Replayed,
	}
	if res.Entry.CurrencyAmount.Valid {
		out.CurrencyAmount = res.Entry.CurrencyAmount.Decimal
	}
	return out, nil
}

// ConfirmCheckout verifies a checkout session with the payment processor
// and credits it. A session that was already credited to this user is
// answered from the ledger without calling the processor.
func (s *Service) ConfirmCheckout(ctx context.Context, userID uuid.UUID, sessionID string) (*Confirmation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidExternalReference
	}

	prior, err := s.findPrior(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if prior.UserID != userID {
			return nil, fmt.Errorf("%w: session belongs to another user", ErrInvalidExternalReference)
		}
		balance, err := s.ledger.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &Confirmation{
			EntryID:        prior.ID,
			Credits:        prior.Amount,
			CurrencyAmount: prior.CurrencyAmount.Decimal,
			Balance:        balance,
			Replayed:       true,
		}, nil
	}

	session, err := s.verifier.GetCheckoutSession(ctx, sessionID)
	if errors.Is(err, payment.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session not found", ErrInvalidExternalReference)
	}
	if err != nil {
		logger.LogError(ctx, err, "checkout session lookup failed", "session_id", sessionID)
		return nil, ErrVerificationUnavailable
	}

	return s.confirmSession(ctx, userID, session)
}

// HandleWebhook verifies and applies a processor webhook. Events other
// than a paid checkout completion are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Confirmation, error) {
	if err := payment.VerifySignature(payload, signature, s.webhookSecret, payment.DefaultTolerance, s.now()); err != nil {
		return nil, err
	}

	ev, err := payment.ParseWebhook(payload)
	if err != nil {
		return nil, err
	}
	if ev.Type != payment.EventCheckoutCompleted || !ev.Data.Object.Paid() {
		logger.LogDebug(ctx, "payment webhook ignored", "event_id", ev.ID, "type", ev.Type)
		return nil, nil
	}

	userID, err := uuid.Parse(ev.Data.Object.UserID())
	if err != nil {
		return nil, fmt.Errorf("%w: session has no valid user", ErrInvalidExternalReference)
	}
	return s.confirmSession(ctx, userID, &ev.Data.Object)
}

func (s *Service) confirmSession(ctx context.Context, userID uuid.UUID, session *payment.CheckoutSession) (*Confirmation, error) {
	if !session.Paid() {
		return nil, fmt.Errorf("%w: payment not confirmed", ErrInvalidExternalReference)
	}
	if session.UserID() != userID.String() {
		return nil, fmt.Errorf("%w: session belongs to another user", ErrInvalidExternalReference)
	}

	credits, err := s.creditsFor(session)
	if err != nil {
		return nil, err
	}
	return s.ConfirmDeposit(ctx, userID, session.ID, credits, session.CurrencyAmount())
}

// creditsFor prefers the configured plan for the paid amount over the
// credits recorded in the session metadata.
func (s *Service) creditsFor(session *payment.CheckoutSession) (int64, error) {
	if credits, ok := s.plans[session.PlanAmount()]; ok {
		return credits, nil
	}
	if credits := session.MetadataCredits(); credits > 0 {
		return credits, nil
	}
	return 0, ErrUnknownPlan
}

func (s *Service) findPrior(ctx context.Context, ref string) (*ledger.Entry, error) {
	var prior *ledger.Entry
	err := database.Retry(ctx, s.ledger.Policy(), "deposit.find_prior", func(ctx context.Context) error {
		e, ok, err := s.ledger.Store().FindEntryByRef(ctx, ledger.KindDeposit, ref)
		if err != nil {
			return err
		}
		if ok {
			prior = e
		}
		return nil
	})
	return prior, err
}
