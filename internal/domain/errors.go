package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// Router admission rejections (spec section 4.E).
	ErrCooldown        = errors.New("cooldown active")
	ErrDailyLossLimit  = errors.New("daily loss limit reached")
	ErrMaxPositions    = errors.New("max concurrent positions reached")
	ErrKillSwitch      = errors.New("kill switch engaged")
	ErrBelowMinStrength = errors.New("signal confidence below minimum strength")
	ErrNotAllowlisted  = errors.New("signal type not allowlisted")
	ErrExposureCap     = errors.New("exposure cap exceeded")

	// Execution service failures (spec section 4.B / 7).
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrWouldCross       = errors.New("order would cross the spread")
	ErrSlippageExceeded = errors.New("slippage exceeded")
)
