package models

import "errors"

// Error taxonomy surfaced to clients. Every error is scoped to the
// originating connection; none of them mutate peer state.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrDeliveryFailed       = errors.New("delivery failed")
	ErrNotFound             = errors.New("not found")
)

// Wire error codes.
const (
	CodeAuthenticationFailed = "authentication_failed"
	CodeInvalidRequest       = "invalid_request"
	CodeUnauthorized         = "unauthorized"
	CodeDeliveryFailed       = "delivery_failed"
	CodeNotFound             = "not_found"
	CodeInternal             = "internal"
)

// ErrorCode maps a taxonomy error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrDeliveryFailed):
		return CodeDeliveryFailed
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}
