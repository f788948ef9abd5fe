package session

import "errors"

var (
	ErrWindowLimitExceeded  = errors.New("window limit exceeded")
	ErrWindowNotFound       = errors.New("window not found")
	ErrItemNotFound         = errors.New("item not found")
	ErrConfirmationRequired = errors.New("window has recorded consumption; confirm to close")
	ErrUpdateRejected       = errors.New("update rejected")
	ErrItemBusy             = errors.New("item update already in flight")
	ErrRenameInFlight       = errors.New("event rename already in flight")
	ErrReportInFlight       = errors.New("report send already in flight")
	ErrNothingToReport      = errors.New("no consumption recorded")
	ErrInvalidEventName     = errors.New("event name must not be blank")
	ErrInvalidLayout        = errors.New("unknown layout mode")
	ErrConfigLoadFailed     = errors.New("configuration load failed")
	ErrWindowClosed         = errors.New("window closed")
	ErrAlreadyStarted       = errors.New("tracker already started")
)
