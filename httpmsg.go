package icap

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/icapforge/icap/icaperr"
)

// defaultContentType is assumed per RFC 1341 when a message carries no
// Content-Type header at all.
const defaultContentType = "text/plain; charset=us-ascii"

// HTTPMessage is the tagged-variant interface shared by HTTPRequest and
// HTTPResponse: the encapsulated HTTP sub-message of an ICAP transaction.
type HTTPMessage interface {
	// Headers returns the message's HeadersDict.
	Headers() *HeadersDict
	// BodyBytes returns the raw, undecoded body.
	BodyBytes() []byte
	// SetBodyBytes replaces the raw body with b.
	SetBodyBytes(b []byte)
	// Text decodes the body using the charset named by Content-Type.
	Text() (string, error)
	// SetText encodes s using the charset named by Content-Type and
	// sets it as the body. Fails if Content-Type names an
	// application/text/message type with no charset.
	SetText(s string) error
	// ContentType returns the parsed media type and charset (charset
	// may be empty).
	ContentType() (mediaType, charset string)
	// PreSerialize runs any bookkeeping (cookie flushing, form
	// re-encoding) that must happen exactly once before the message is
	// written to the wire.
	PreSerialize() error
	// preamble returns the serialized request-line/status-line plus
	// headers, not including the body.
	preamble() []byte
}

type httpCommon struct {
	headers    *HeadersDict
	body       []byte
	cookies    map[string]*http.Cookie
	setCookies map[string]*http.Cookie
}

func newHTTPCommon(headers *HeadersDict, body []byte) httpCommon {
	if headers == nil {
		headers = NewHeadersDict()
	}
	c := httpCommon{
		headers:    headers,
		body:       body,
		cookies:    map[string]*http.Cookie{},
		setCookies: map[string]*http.Cookie{},
	}
	if raw, ok := headers.Get("Cookie"); ok {
		hdr := http.Header{"Cookie": []string{raw}}
		req := http.Request{Header: hdr}
		for _, ck := range req.Cookies() {
			c.cookies[ck.Name] = ck
		}
	}
	return c
}

func (c *httpCommon) Headers() *HeadersDict   { return c.headers }
func (c *httpCommon) BodyBytes() []byte       { return c.body }
func (c *httpCommon) SetBodyBytes(b []byte)   { c.body = b }

func (c *httpCommon) ContentType() (string, string) {
	raw := c.headers.GetDefault("Content-Type", defaultContentType)
	mediaType, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw, ""
	}
	return mediaType, params["charset"]
}

func (c *httpCommon) Text() (string, error) {
	_, charset := c.ContentType()
	if charset == "" {
		return string(c.body), nil
	}
	decoded, err := decodeCharset(c.body, charset)
	if err != nil {
		return "", err
	}
	return decoded, nil
}

func (c *httpCommon) SetText(s string) error {
	mediaType, charset := c.ContentType()
	if charset == "" {
		if strings.HasPrefix(mediaType, "application") ||
			strings.HasPrefix(mediaType, "text") ||
			strings.HasPrefix(mediaType, "message") {
			return icaperr.Errorf(500, "icap: cannot set text body: %q has no charset", mediaType)
		}
		c.body = []byte(s)
		return nil
	}
	encoded, err := encodeCharset(s, charset)
	if err != nil {
		return err
	}
	c.body = encoded
	return nil
}

// Cookies returns the cookies parsed from the message's Cookie header.
func (c *httpCommon) Cookies() map[string]*http.Cookie { return c.cookies }

// SetCookie records a Set-Cookie to be flushed into headers at
// PreSerialize time, and updates the in-memory Cookie view.
func (c *httpCommon) SetCookie(ck *http.Cookie) {
	c.cookies[ck.Name] = ck
	c.setCookies[ck.Name] = ck
}

// DelCookie marks name for deletion: an immediately-expiring Set-Cookie
// is queued, and the in-memory Cookie view drops it.
func (c *httpCommon) DelCookie(name string) {
	delete(c.cookies, name)
	c.setCookies[name] = &http.Cookie{Name: name, Value: "", MaxAge: -1}
}

func (c *httpCommon) flushCookies() {
	for _, ck := range c.setCookies {
		c.headers.Append("Set-Cookie", ck.String())
	}
	c.setCookies = map[string]*http.Cookie{}
}

// HTTPRequest is the encapsulated HTTP request of a REQMOD transaction.
type HTTPRequest struct {
	httpCommon
	RequestLine *RequestLine

	formDirty bool
	form      url.Values
}

// NewHTTPRequest builds an HTTPRequest, defaulting to "GET / HTTP/1.1"
// when line is nil.
func NewHTTPRequest(line *RequestLine, headers *HeadersDict, body []byte) *HTTPRequest {
	if line == nil {
		line, _ = NewRequestLine("GET", "/", "HTTP/1.1")
	}
	return &HTTPRequest{httpCommon: newHTTPCommon(headers, body), RequestLine: line}
}

func (r *HTTPRequest) preamble() []byte {
	out := append(r.RequestLine.Bytes(), "\r\n"...)
	out = append(out, r.headers.Bytes()...)
	return append(out, "\r\n"...)
}

// PostForm lazily parses the body as application/x-www-form-urlencoded.
// Returns nil if the content type doesn't match.
func (r *HTTPRequest) PostForm() (url.Values, error) {
	mediaType, _ := r.ContentType()
	if mediaType != "application/x-www-form-urlencoded" {
		return nil, nil
	}
	if r.form == nil {
		text, err := r.Text()
		if err != nil {
			return nil, err
		}
		form, err := url.ParseQuery(text)
		if err != nil {
			return nil, icaperr.Wrap(500, err)
		}
		r.form = form
	}
	return r.form, nil
}

// MarkFormDirty flags that a handler mutated the values returned from
// PostForm, so PreSerialize re-encodes the body from them.
func (r *HTTPRequest) MarkFormDirty() { r.formDirty = true }

// PreSerialize flushes any Set-Cookie bookkeeping and, if the parsed
// form was mutated, re-encodes the body from it.
func (r *HTTPRequest) PreSerialize() error {
	r.flushCookies()
	if r.formDirty && r.form != nil {
		r.body = []byte(r.form.Encode())
	}
	return nil
}

// HTTPResponse is the encapsulated HTTP response of a RESPMOD
// transaction. When the client provided the originating request's
// preamble, it is carried here too.
type HTTPResponse struct {
	httpCommon
	StatusLine *StatusLine

	RequestLine    *RequestLine
	RequestHeaders *HeadersDict
}

// NewHTTPResponse builds an HTTPResponse, defaulting to "HTTP/1.1 200 OK"
// when line is nil.
func NewHTTPResponse(line *StatusLine, headers *HeadersDict, body []byte) *HTTPResponse {
	if line == nil {
		line = NewStatusLine("HTTP/1.1", 200, "")
	}
	reqLine, _ := NewRequestLine("GET", "/", "HTTP/1.1")
	return &HTTPResponse{
		httpCommon:     newHTTPCommon(headers, body),
		StatusLine:     line,
		RequestLine:    reqLine,
		RequestHeaders: NewHeadersDict(),
	}
}

func (r *HTTPResponse) preamble() []byte {
	out := append(r.StatusLine.Bytes(), "\r\n"...)
	out = append(out, r.headers.Bytes()...)
	return append(out, "\r\n"...)
}

// PreSerialize flushes any Set-Cookie bookkeeping into headers.
func (r *HTTPResponse) PreSerialize() error {
	r.flushCookies()
	return nil
}
