package admin

import "errors"

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrExportUnavailable = errors.New("ledger export storage is not configured")
	ErrExportTooLarge    = errors.New("ledger export exceeds the row limit")
)
