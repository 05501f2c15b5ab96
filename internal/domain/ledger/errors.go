package ledger

import (
	"errors"
	"net/http"

	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid entry kind")
	ErrAccountNotFound     = errors.New("account not found")
	ErrDuplicateEntry      = errors.New("duplicate ledger entry")
	ErrReferenceConflict   = errors.New("reference already used with a different amount or user")

	// ErrStoreUnavailable is the transient store failure every component surfaces.
	ErrStoreUnavailable = database.ErrUnavailable
)

// ErrorMappings translate ledger errors for HTTP handlers.
var ErrorMappings = []errorhandler.Mapping{
	{Err: ErrInsufficientBalance, Status: http.StatusConflict, Code: "INSUFFICIENT_BALANCE", Message: "Insufficient balance"},
	{Err: ErrInvalidAmount, Status: http.StatusUnprocessableEntity, Code: "INVALID_AMOUNT", Message: "Amount must be a positive whole number of credits"},
	{Err: ErrAccountNotFound, Status: http.StatusNotFound, Code: "ACCOUNT_NOT_FOUND", Message: "Account not found"},
	{Err: ErrInvalidKind, Status: http.StatusBadRequest, Code: "INVALID_KIND", Message: "Unknown transaction kind"},
	{Err: ErrReferenceConflict, Status: http.StatusConflict, Code: "REFERENCE_CONFLICT", Message: "Reference was already used for a different operation"},
}
