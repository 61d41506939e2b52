package fetch

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies every failure a caller can receive from this package.
type Kind string

const (
	KindUnauthenticated      Kind = "Unauthenticated"
	KindAuthorizationFailure Kind = "AuthorizationFailure"
	KindNetwork              Kind = "NetworkError"
	KindMissingData          Kind = "MissingData"
	KindValidation           Kind = "ValidationError"
	KindServer               Kind = "ServerError"
)

// NetworkMessage is the message of every transport failure.
const NetworkMessage = "Network error: Unable to connect to server. Please check your connection and try again."

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrAuthorizationFailure = errors.New("authorization failure")
	ErrNetwork              = errors.New("network error")
	ErrMissingData          = errors.New("missing data")
	ErrValidation           = errors.New("validation error")
	ErrServer               = errors.New("server error")
)

var sentinels = map[Kind]error{
	KindUnauthenticated:      ErrUnauthenticated,
	KindAuthorizationFailure: ErrAuthorizationFailure,
	KindNetwork:              ErrNetwork,
	KindMissingData:          ErrMissingData,
	KindValidation:           ErrValidation,
	KindServer:               ErrServer,
}

var fallbackMessages = map[Kind]string{
	KindUnauthenticated:      "Your session has expired. Please sign in again.",
	KindAuthorizationFailure: "You are not authorized to perform this action. Please sign in again.",
	KindNetwork:              NetworkMessage,
	KindMissingData:          "The server returned no data.",
	KindValidation:           "Please correct the invalid fields and try again.",
	KindServer:               "Something went wrong. Please try again.",
}

// Sentinel returns the errors.Is target for kind.
func Sentinel(kind Kind) error {
	return sentinels[kind]
}

// Error is a categorised request failure. Status is the HTTP status when one was received.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func newError(kind Kind, message string, status int, cause error) *Error {
	return &Error{Kind: kind, Message: message, Status: status, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fallbackMessages[e.Kind]
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target != nil && sentinels[e.Kind] == target
}

func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// kinded is implemented by errors that belong to the taxonomy but are raised
// outside this package, such as form validation failures.
type kinded interface {
	error
	ErrorKind() Kind
}

// KindOf returns the Kind of err, or "" when err is nil or uncategorised.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the text to show for err: the server or client message
// verbatim when present, otherwise a generic fallback for its kind.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Message != "" {
			return fe.Message
		}
		return fallbackMessages[fe.Kind]
	}
	if kind := KindOf(err); kind != "" {
		return err.Error()
	}
	return fallbackMessages[KindServer]
}

// RequiresSignIn reports whether err is resolved by sending the user to the login view
// rather than by showing it.
func RequiresSignIn(err error) bool {
	kind := KindOf(err)
	return kind == KindUnauthenticated || kind == KindAuthorizationFailure
}
