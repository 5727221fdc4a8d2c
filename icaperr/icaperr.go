// Package icaperr provides the canonical ICAP and HTTP status reason
// tables and the typed errors the engine uses to map internal failures
// onto legal ICAP responses.
package icaperr

import "fmt"

// ICAPReasons maps ICAP status codes to their canonical reason phrase,
// per RFC 3507 and the extensions in common use (100, 204).
var ICAPReasons = map[int]string{
	100: "Continue",
	200: "OK",
	204: "No Content",
	400: "Bad request",
	403: "Forbidden",
	404: "ICAP Service not found",
	405: "Method not allowed for service",
	406: "No acceptable service available",
	407: "ICAP Proxy Authentication Required",
	408: "Request timeout",
	418: "Bad composition",
	500: "Server error",
	501: "Method not implemented",
	502: "Bad Gateway",
	503: "Service overloaded",
	505: "ICAP version not supported by server",
}

// HTTPReasons maps the subset of HTTP status codes this engine needs a
// default reason phrase for, when constructing an encapsulated HTTP
// response without one.
var HTTPReasons = map[int]string{
	100: "Continue",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// Error is an error that carries the ICAP status code it should be
// reported to the client as.
type Error struct {
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ICAPReasons[e.Code]
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the ICAP status code carried by err, defaulting to
// 500 for any error that isn't one of ours.
func StatusCode(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return 500
}

// New builds an *Error for code with the canonical reason as its message.
func New(code int) *Error {
	return &Error{Code: code, Msg: ICAPReasons[code]}
}

// Wrap builds an *Error for code that wraps err, keeping err's message
// available via Unwrap while reporting at the ICAP layer as code.
func Wrap(code int, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf builds an *Error for code with a formatted message.
func Errorf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

var (
	// ErrMalformedRequest covers any unparseable ICAP preamble, per
	// spec §7: "Malformed request".
	ErrMalformedRequest = New(400)
	// ErrUnknownMethod covers any method besides REQMOD/RESPMOD/OPTIONS.
	ErrUnknownMethod = New(501)
	// ErrNoHandler covers a path with no handler registered.
	ErrNoHandler = New(404)
	// ErrHandlerFailure covers any error escaping a handler invocation.
	ErrHandlerFailure = New(500)
)
