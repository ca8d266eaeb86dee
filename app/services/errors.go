package services

import "errors"

// Error taxonomy for the sync engine and stock mutation paths.
//
//   - ErrConnectionUnavailable: external source unreachable. Non-fatal; the
//     sync record is failed and retried later.
//   - ErrInsufficientStock: a decrement would take stock negative. Fatal to
//     the single mutation, never to a batch.
//   - ErrEntityNotFound: missing product or warehouse. Fatal to the item,
//     skipped in batch context.
//   - ErrNonRetryable: a sync record whose action cannot be reconstructed
//     from its stored payload. Surfaced to the operator, never auto-retried.
//   - ErrValidation: bad input shape, rejected before any side effect.
var (
	ErrConnectionUnavailable = errors.New("external inventory source unavailable")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrEntityNotFound        = errors.New("entity not found")
	ErrNonRetryable          = errors.New("sync record is not retryable")
	ErrValidation            = errors.New("validation failed")
)
