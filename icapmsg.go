package icap

import "strings"

// ICAPRequest is a parsed ICAP request: its envelope plus the
// encapsulated HTTP sub-message appropriate to its method.
//
// REQMOD always carries HTTPReq; RESPMOD always carries HTTPResp (and,
// when the client provided it, the originating request's line and
// headers via HTTPResp.RequestLine/RequestHeaders). OPTIONS carries
// neither.
type ICAPRequest struct {
	RequestLine *RequestLine
	Headers     *HeadersDict

	HTTPReq  *HTTPRequest
	HTTPResp *HTTPResponse

	// RemoteAddr is the network address of the client, set by the
	// connection pipeline.
	RemoteAddr string

	// Preview is the negotiated preview size, or -1 if the client sent
	// no Preview header.
	Preview int
	// PreviewEOF is true once a preview body's terminating chunk has
	// carried the "ieof" extension, meaning the whole body was shorter
	// than the declared preview and no remainder should be requested.
	PreviewEOF bool

	encapsulated []encapsulatedEntry
}

// NewICAPRequest builds a bare ICAPRequest defaulting to
// "UNKNOWN / ICAP/1.0" when line is nil.
func NewICAPRequest(line *RequestLine) *ICAPRequest {
	if line == nil {
		line, _ = NewRequestLine("UNKNOWN", "/", "ICAP/1.0")
	}
	return &ICAPRequest{RequestLine: line, Headers: NewHeadersDict(), Preview: -1}
}

// Method returns the ICAP method of the request.
func (r *ICAPRequest) Method() string { return r.RequestLine.Method }

// IsREQMOD reports whether the request is a REQMOD request.
func (r *ICAPRequest) IsREQMOD() bool { return r.Method() == "REQMOD" }

// IsRESPMOD reports whether the request is a RESPMOD request.
func (r *ICAPRequest) IsRESPMOD() bool { return r.Method() == "RESPMOD" }

// IsOPTIONS reports whether the request is an OPTIONS request.
func (r *ICAPRequest) IsOPTIONS() bool { return r.Method() == "OPTIONS" }

// HasBody reports whether the request carries an encapsulated body, per
// the Encapsulated: header (false for null-body, and for OPTIONS
// requests that omit Encapsulated entirely).
func (r *ICAPRequest) HasBody() bool {
	enc, ok := r.Headers.Get("Encapsulated")
	if !ok {
		return !r.IsOPTIONS()
	}
	return !strings.Contains(enc, "null-body")
}

// AllowsNoContent reports whether the client permits a 204 response: its
// Allow header contains the token "204", or it sent a Preview header at
// all (RFC 3507 implicitly permits 204 for previewed transactions).
func (r *ICAPRequest) AllowsNoContent() bool {
	if r.Preview >= 0 {
		return true
	}
	for _, tok := range strings.Split(r.Headers.GetDefault("Allow", ""), ",") {
		if strings.TrimSpace(tok) == "204" {
			return true
		}
	}
	return false
}

// ICAPResponse is a constructed ICAP response: its envelope plus the
// (optional) encapsulated HTTP sub-message being returned to the client.
type ICAPResponse struct {
	StatusLine *StatusLine
	Headers    *HeadersDict

	HTTPReq  *HTTPRequest
	HTTPResp *HTTPResponse
}

// NewICAPResponse builds an ICAPResponse defaulting to "ICAP/1.0 200 OK"
// when line is nil.
func NewICAPResponse(line *StatusLine) *ICAPResponse {
	if line == nil {
		line = NewStatusLine("ICAP/1.0", 200, "")
	}
	return &ICAPResponse{StatusLine: line, Headers: NewHeadersDict()}
}

// NewErrorResponse builds a bodiless ICAPResponse for the given ICAP
// status code, with its canonical reason phrase.
func NewErrorResponse(code int) *ICAPResponse {
	return NewICAPResponse(NewStatusLine("ICAP/1.0", code, ""))
}
