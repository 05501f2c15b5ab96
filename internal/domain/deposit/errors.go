package deposit

import (
	"errors"
	"net/http"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
)

var (
	ErrInvalidExternalReference = errors.New("external payment could not be verified")
	ErrVerificationUnavailable  = errors.New("payment processor unavailable")
	ErrUnknownPlan              = errors.New("unknown deposit plan")
)

var errorMappings = append([]errorhandler.Mapping{
	{Err: ErrInvalidExternalReference, Status: http.StatusPaymentRequired, Code: "INVALID_EXTERNAL_REFERENCE", Message: "Payment could not be verified for this account"},
	{Err: ErrVerificationUnavailable, Status: http.StatusBadGateway, Code: "PAYMENT_PROVIDER_UNAVAILABLE", Message: "Payment provider is unavailable, please retry"},
	{Err: ErrUnknownPlan, Status: http.StatusUnprocessableEntity, Code: "UNKNOWN_PLAN", Message: "Unknown deposit plan"},
}, ledger.ErrorMappings...)
