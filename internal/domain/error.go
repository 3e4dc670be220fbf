package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrTenantNotFound     = errors.New("no tenant record matches the given identity")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConfiguration      = errors.New("missing or invalid configuration")
	ErrAuthentication     = errors.New("no active or restorable session")
	ErrGateway            = errors.New("payment gateway rejected the request")
	ErrBadSignature       = errors.New("webhook signature verification failed")
	ErrCorrelationFailed  = errors.New("best-effort correlation lookup failed")
	ErrIntentExpired      = errors.New("checkout intent expired")
	ErrUnknownEventType   = errors.New("unhandled webhook event type")
	ErrUnknownTenantType  = errors.New("unknown tenant type tag")

	// Infrastructure-layer sentinels surfaced through repositories.
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)
