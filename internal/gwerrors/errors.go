// Package gwerrors implements the gateway's closed error taxonomy. Every
// error that can cross the HTTP boundary is one of the Kind values below;
// handlers render an Error directly to JSON instead of leaking a raw Go
// error to the client.
package gwerrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is the closed set of gateway-level error classifications.
type Kind string

// Kind constants mirror enums.ErrorType from the orchestration source.
const (
	KindValidation     Kind = "ValidationError"
	KindMissingAuth    Kind = "MissingAuth"
	KindInvalidAuthFmt Kind = "InvalidAuthFormat"
	KindInvalidToken   Kind = "InvalidToken"
	KindExpiredJWT     Kind = "ExpiredJWT"
	KindConnection     Kind = "ConnectionError"
	KindTimeout        Kind = "TimeoutError"
	KindResponse       Kind = "ResponseError"
	KindAuthorization  Kind = "AuthorizationError"
	KindInternal       Kind = "InternalError"
)

// Error is the structured error type surfaced at the HTTP boundary.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Service string `json:"service,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Service)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// statusByKind is the closed Kind → HTTP status mapping from the error
// taxonomy table. ResponseError carries its own status on the Error value
// (see WithStatus) and is not looked up here.
var statusByKind = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindMissingAuth:    http.StatusBadRequest,
	KindInvalidAuthFmt: http.StatusBadRequest,
	KindInvalidToken:   http.StatusForbidden,
	KindExpiredJWT:     http.StatusForbidden,
	KindConnection:     http.StatusServiceUnavailable,
	KindTimeout:        http.StatusGatewayTimeout,
	KindAuthorization:  http.StatusForbidden,
	KindInternal:       http.StatusInternalServerError,
}

// New builds an Error of the given kind with the default status for that
// kind. Use WithStatus for ResponseError, whose status is the downstream
// status code.
func New(kind Kind, message string) *Error {
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Message: message, Status: status}
}

// Wrap builds an Error of the given kind wrapping cause, carrying the
// downstream service name for log/user-message context.
func Wrap(kind Kind, service string, cause error) *Error {
	e := New(kind, cause.Error())
	e.Service = service
	e.Cause = cause
	return e
}

// WithStatus returns a copy of e with an explicit HTTP status, used for
// ResponseError where the status is the downstream service's status code.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.Status = status
	return &cp
}

// DeploymentMode distinguishes local development from a hosted deployment
// for the purpose of user-facing remediation messages.
type DeploymentMode string

// DeploymentMode constants, matching the AUTH_TYPE/DEPLOYMENT_MODE closed set.
const (
	ModeLocal      DeploymentMode = "local"
	ModeProduction DeploymentMode = "production"
)

// UserMessage renders the client-facing message for e, varying by
// deployment mode the way exceptions.py's get_user_message() does:
// local mode names the failing service and suggests a restart, production
// mode gives a generic, support-pointing message.
func (e *Error) UserMessage(mode DeploymentMode) string {
	switch e.Kind {
	case KindConnection, KindTimeout:
		if mode == ModeLocal && e.Service != "" {
			return fmt.Sprintf("could not reach the %s service; is it running? try restarting it", e.Service)
		}
		return "a downstream service is unavailable; please contact support"
	case KindResponse:
		if mode == ModeLocal && e.Service != "" {
			return fmt.Sprintf("the %s service returned an error: %s", e.Service, e.Message)
		}
		return "a downstream service rejected the request"
	case KindAuthorization:
		return "not authorized to perform this operation"
	case KindInternal:
		if mode == ModeLocal {
			return e.Message
		}
		return "an internal error occurred; please contact support"
	default:
		return e.Message
	}
}

// WriteJSON renders e as the standard gateway error body and sets the HTTP
// status on w.
func (e *Error) WriteJSON(w http.ResponseWriter, mode DeploymentMode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	body := struct {
		Status  string `json:"status"`
		Kind    Kind   `json:"kind"`
		Error   string `json:"error"`
		Service string `json:"service,omitempty"`
	}{
		Status:  "error",
		Kind:    e.Kind,
		Error:   e.UserMessage(mode),
		Service: e.Service,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// As attempts to unwrap err into a *Error, returning (nil, false) for any
// other error type so callers can fall back to KindInternal.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	return nil, false
}
