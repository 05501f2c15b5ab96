package deposit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/ledger/ledgertest"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/payment"
)

var testPolicy = database.RetryPolicy{Timeout: time.Second, Retries: 2, Backoff: time.Millisecond}

var testPlans = map[string]int64{"20": 100, "30": 180, "40": 280, "190": 400}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) GetCheckoutSession(ctx context.Context, id string) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*payment.CheckoutSession)
	return s, args.Error(1)
}

func newTestService(v payment.Verifier) (*Service, *ledgertest.MemStore) {
	store := ledgertest.New()
	return NewService(ledger.NewService(store, testPolicy), v, testPlans, "whsec"), store
}

func paidSession(id string, userID uuid.UUID, amount string) *payment.CheckoutSession {
	return &payment.CheckoutSession{
		ID:            id,
		PaymentStatus: payment.StatusPaid,
		Status:        "complete",
		AmountTotal:   2000,
		Currency:      "brl",
		Metadata:      map[string]string{"user_id": userID.String(), "amount": amount, "credits": "999"},
	}
}

func TestConfirmDeposit_Idempotent(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.ConfirmDeposit(ctx, userID, "ext-1", 100, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, int64(100), first.Balance)

	second, err := svc.ConfirmDeposit(ctx, userID, "ext-1", 100, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.EntryID, second.EntryID)
	assert.Equal(t, int64(100), second.Balance)

	acct, err := store.GetAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acct.Balance)
	assert.True(t, acct.TotalDeposited.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int64(100), store.Sum(userID))
}

func TestConfirmDeposit_Validation(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.ConfirmDeposit(ctx, uuid.New(), "  ", 100, decimal.NewFromInt(20))
	assert.ErrorIs(t, err, ErrInvalidExternalReference)

	_, err = svc.ConfirmDeposit(ctx, uuid.New(), "ext-2", 0, decimal.NewFromInt(20))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestConfirmDeposit_RefOwnedByAnotherUser(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	_, err := svc.ConfirmDeposit(ctx, owner, "ext-3", 100, decimal.NewFromInt(20))
	require.NoError(t, err)

	_, err = svc.ConfirmDeposit(ctx, other, "ext-3", 100, decimal.NewFromInt(20))
	assert.ErrorIs(t, err, ErrInvalidExternalReference)
	assert.Equal(t, int64(0), store.Sum(other))
}

func TestConfirmCheckout_UsesPlanCredits(t *testing.T) {
	v := new(mockVerifier)
	svc, _ := newTestService(v)
	userID := uuid.New()

	v.On("GetCheckoutSession", mock.Anything, "cs_1").Return(paidSession("cs_1", userID, "30"), nil).Once()

	out, err := svc.ConfirmCheckout(context.Background(), userID, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(180), out.Credits)
	assert.True(t, out.CurrencyAmount.Equal(decimal.NewFromInt(20)))
	v.AssertExpectations(t)
}

func TestConfirmCheckout_ReplayDoesNotCallProcessor(t *testing.T) {
	v := new(mockVerifier)
	svc, _ := newTestService(v)
	userID := uuid.New()

	v.On("GetCheckoutSession", mock.Anything, "cs_2").Return(paidSession("cs_2", userID, "20"), nil).Once()

	_, err := svc.ConfirmCheckout(context.Background(), userID, "cs_2")
	require.NoError(t, err)

	out, err := svc.ConfirmCheckout(context.Background(), userID, "cs_2")
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, int64(100), out.Balance)
	v.AssertNumberOfCalls(t, "GetCheckoutSession", 1)
}

func TestConfirmCheckout_Rejections(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name    string
		session *payment.CheckoutSession
		err     error
		want    error
	}{
		{
			name: "unpaid",
			session: func() *payment.CheckoutSession {
				s := paidSession("cs", userID, "20")
				s.PaymentStatus = payment.StatusUnpaid
				return s
			}(),
			want: ErrInvalidExternalReference,
		},
		{
			name:    "other user",
			session: paidSession("cs", uuid.New(), "20"),
			want:    ErrInvalidExternalReference,
		},
		{
			name:    "not found",
			err:     payment.ErrSessionNotFound,
			want:    ErrInvalidExternalReference,
		},
		{
			name: "processor down",
			err:  errors.New("connection refused"),
			want: ErrVerificationUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := new(mockVerifier)
			svc, store := newTestService(v)
			v.On("GetCheckoutSession", mock.Anything, "cs").Return(tt.session, tt.err)

			_, err := svc.ConfirmCheckout(context.Background(), userID, "cs")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(0), store.Sum(userID))
		})
	}
}

func TestCreditsFor_FallsBackToMetadata(t *testing.T) {
	svc, _ := newTestService(nil)

	s := paidSession("cs", uuid.New(), "55")
	credits, err := svc.creditsFor(s)
	require.NoError(t, err)
	assert.Equal(t, int64(999), credits)

	delete(s.Metadata, "credits")
	_, err = svc.creditsFor(s)
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestHandleWebhook(t *testing.T) {
	svc, store := newTestService(nil)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	userID := uuid.New()

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_w","payment_status":"paid","amount_total":4000,"currency":"brl","metadata":{"user_id":"` + userID.String() + `","amount":"40"}}}}`)
	header := payment.GenerateSignatureHeader(payload, "whsec", now)

	out, err := svc.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, int64(280), out.Credits)

	// redelivery
	out, err = svc.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, int64(280), store.Sum(userID))

	_, err = svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestPlansSortedByAmount(t *testing.T) {
	svc, _ := newTestService(nil)
	plans := svc.Plans()
	require.Len(t, plans, 4)
	assert.Equal(t, "20", plans[0].Amount)
	assert.Equal(t, "190", plans[3].Amount)
}
