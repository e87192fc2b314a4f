// Package gatewayerr implements the error taxonomy used to translate
// rejections and internal failures into the gateway's JSON error envelope.
package gatewayerr

import "fmt"

// Kind classifies a gateway-level failure into one of the taxonomy entries
// from the error handling design.
type Kind string

const (
	KindBadTimestamp    Kind = "bad_timestamp"
	KindStale           Kind = "stale"
	KindBadKey          Kind = "bad_key"
	KindBadAlg          Kind = "bad_alg"
	KindUnauthorized    Kind = "unauthorized"
	KindBadSignature    Kind = "bad_signature"
	KindBadRequestBody  Kind = "bad_request_body"
	KindLDAPConnect     Kind = "ldap_connect"
	KindLDAPExec        Kind = "ldap_exec"
	KindSerialization   Kind = "serialization"
	KindInternal        Kind = "internal"
	KindTimeout         Kind = "timeout"
)

// Error is a typed gateway error carrying the HTTP status and message that
// the HTTP surface renders verbatim into {"result": false, "message": ...}.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, status int, message string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: err}
}

func BadTimestamp() *Error {
	return newf(KindBadTimestamp, 400, "Invalid timestamp")
}

func Stale() *Error {
	return newf(KindStale, 400, "Timestamp is too old")
}

func BadKey(err error) *Error {
	return wrap(KindBadKey, 400, fmt.Sprintf("Invalid public key: %v", err), err)
}

func BadAlg() *Error {
	return newf(KindBadAlg, 400, "Invalid public key algorithm")
}

func Unauthorized() *Error {
	return newf(KindUnauthorized, 401, "Unauthorized")
}

func BadSignature(prefix string, err error) *Error {
	return wrap(KindBadSignature, 400, fmt.Sprintf("%s: %v", prefix, err), err)
}

func BadRequestBody(err error) *Error {
	return wrap(KindBadRequestBody, 400, fmt.Sprintf("Failed to parse request: %v", err), err)
}

func LDAPConnect(err error) *Error {
	return wrap(KindLDAPConnect, 502, fmt.Sprintf("Failed to connect to LDAP server: %v", err), err)
}

func LDAPExec(command string, err error) *Error {
	return wrap(KindLDAPExec, 206, fmt.Sprintf("Failed to execute command: %s: %v", command, err), err)
}

func Serialization(err error) *Error {
	return wrap(KindSerialization, 500, fmt.Sprintf("Failed to serialize payload: %v", err), err)
}

func Internal(err error) *Error {
	return wrap(KindInternal, 500, "Internal server error", err)
}

func Timeout() *Error {
	return newf(KindTimeout, 408, "Request timed out")
}
