package deposit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditwager/creditwager-api/internal/middleware"
)

func TestHandler_Confirm(t *testing.T) {
	v := new(mockVerifier)
	svc, _ := newTestService(v)
	h := NewHandler(svc)
	userID := uuid.New()

	v.On("GetCheckoutSession", mock.Anything, "cs_h").Return(paidSession("cs_h", userID, "20"), nil)

	req := httptest.NewRequest(http.MethodPost, "/deposits/confirm", strings.NewReader(`{"session_id":"cs_h"}`))
	req = req.WithContext(middleware.WithUser(req.Context(), userID, "player"))
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool         `json:"success"`
		Data    Confirmation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, int64(100), body.Data.Balance)
}

func TestHandler_ConfirmForeignSession(t *testing.T) {
	v := new(mockVerifier)
	svc, _ := newTestService(v)
	h := NewHandler(svc)
	userID := uuid.New()

	v.On("GetCheckoutSession", mock.Anything, "cs_x").Return(paidSession("cs_x", uuid.New(), "20"), nil)

	req := httptest.NewRequest(http.MethodPost, "/deposits/confirm", strings.NewReader(`{"session_id":"cs_x"}`))
	req = req.WithContext(middleware.WithUser(req.Context(), userID, "player"))
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_EXTERNAL_REFERENCE")
}

func TestHandler_ConfirmValidation(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/deposits/confirm", strings.NewReader(`{}`))
	req = req.WithContext(middleware.WithUser(req.Context(), uuid.New(), "player"))
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_id")
}

func TestHandler_WebhookBadSignature(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Payment-Signature", "t=1,v1=00")
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
}
