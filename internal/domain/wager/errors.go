package wager

import (
	"errors"
	"net/http"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidBet          = errors.New("invalid bet")
	ErrWagerNotFound       = errors.New("wager not found")
)

var ErrorMappings = append([]errorhandler.Mapping{
	{Err: ErrInsufficientCredits, Status: http.StatusConflict, Code: "INSUFFICIENT_CREDITS", Message: "Not enough credits for this bet"},
	{Err: ErrInvalidBet, Status: http.StatusUnprocessableEntity, Code: "INVALID_BET", Message: "Invalid bet"},
	{Err: ErrWagerNotFound, Status: http.StatusNotFound, Code: "WAGER_NOT_FOUND", Message: "Wager not found"},
}, ledger.ErrorMappings...)
