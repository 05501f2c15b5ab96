package withdrawal

import (
	"errors"
	"net/http"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
)

var (
	ErrBelowMinimum        = errors.New("withdrawal below minimum")
	ErrInvalidPayoutKey    = errors.New("invalid payout key")
	ErrAlreadyProcessed    = errors.New("withdrawal already processed")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrInvalidAction       = errors.New("invalid action")
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
)

// ErrorMappings translate withdrawal errors for HTTP handlers.
var ErrorMappings = append([]errorhandler.Mapping{
	{Err: ErrBelowMinimum, Status: http.StatusUnprocessableEntity, Code: "BELOW_MINIMUM", Message: "Requested credits are below the withdrawal minimum"},
	{Err: ErrInvalidPayoutKey, Status: http.StatusUnprocessableEntity, Code: "INVALID_PAYOUT_KEY", Message: "Payout key is missing or invalid"},
	{Err: ErrAlreadyProcessed, Status: http.StatusConflict, Code: "ALREADY_PROCESSED", Message: "Withdrawal was already processed"},
	{Err: ErrWithdrawalNotFound, Status: http.StatusNotFound, Code: "WITHDRAWAL_NOT_FOUND", Message: "Withdrawal not found"},
	{Err: ErrInvalidAction, Status: http.StatusBadRequest, Code: "INVALID_ACTION", Message: "Action must be approve or reject"},
}, ledger.ErrorMappings...)
