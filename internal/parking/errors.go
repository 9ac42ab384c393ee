package parking

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindSpotUnavailable          Kind = "spot_unavailable"
	KindVehicleNotFound          Kind = "vehicle_not_found"
	KindVehicleOwnershipMismatch Kind = "vehicle_ownership_mismatch"
	KindNoActiveReservation      Kind = "no_active_reservation"
	KindNoOpenVisit              Kind = "no_open_visit"
	KindImageRequired            Kind = "image_required"
	KindInvalidSubscriptionType  Kind = "invalid_subscription_type"
	KindGatewayError             Kind = "gateway_error"
	KindTimeWindowViolation      Kind = "time_window_violation"
	KindScopeDenied              Kind = "scope_denied"
	KindNotFound                 Kind = "not_found"
	KindVisitAlreadyOpen         Kind = "visit_already_open"
	KindInvalidState             Kind = "invalid_state"
)

// Error is the typed failure returned by every parking operation.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of the reason text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrSpotUnavailable          = &Error{Kind: KindSpotUnavailable}
	ErrVehicleNotFound          = &Error{Kind: KindVehicleNotFound}
	ErrVehicleOwnershipMismatch = &Error{Kind: KindVehicleOwnershipMismatch}
	ErrNoActiveReservation      = &Error{Kind: KindNoActiveReservation}
	ErrNoOpenVisit              = &Error{Kind: KindNoOpenVisit}
	ErrImageRequired            = &Error{Kind: KindImageRequired}
	ErrInvalidSubscriptionType  = &Error{Kind: KindInvalidSubscriptionType}
	ErrGateway                  = &Error{Kind: KindGatewayError}
	ErrTimeWindowViolation      = &Error{Kind: KindTimeWindowViolation}
	ErrScopeDenied              = &Error{Kind: KindScopeDenied}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrVisitAlreadyOpen         = &Error{Kind: KindVisitAlreadyOpen}
	ErrInvalidState             = &Error{Kind: KindInvalidState}
)

func fail(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func failWrap(kind Kind, err error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a parking error, if err is one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// KindIs reports whether err is a parking error of the given kind.
func KindIs(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
