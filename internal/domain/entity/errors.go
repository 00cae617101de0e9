package entity

import "errors"

// Caller errors surfaced synchronously from the engine boundary. They
// are never retried and map to 4xx at the HTTP layer.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPlanNotFound    = errors.New("plan not found")
	ErrPlanBusy        = errors.New("plan is already executing")
)
