package icap

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/icapforge/icap/icaperr"
)

// RequestLine is a parsed request line, e.g. "GET / HTTP/1.1" or
// "REQMOD icap://host/svc ICAP/1.0".
//
// The URI's query string is additionally available as a mutable multimap
// via Query(); mutations are reflected the next time the line is
// serialized with Bytes.
type RequestLine struct {
	Method  string
	URL     *url.URL
	Version string

	query url.Values
}

// NewRequestLine builds a RequestLine from its three parts, parsing uri.
func NewRequestLine(method, uri, version string) (*RequestLine, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	return &RequestLine{Method: method, URL: u, Version: version, query: q}, nil
}

// ParseRequestLine parses a single "METHOD URI VERSION" line (without its
// trailing CRLF).
func ParseRequestLine(line string) (*RequestLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, icaperr.Errorf(400, "icap: malformed request line %q", line)
	}
	return NewRequestLine(parts[0], parts[1], parts[2])
}

// Query returns the mutable query multimap backing the request line's
// URI. Modifications are picked up by Bytes/String.
func (rl *RequestLine) Query() url.Values {
	if rl.query == nil {
		rl.query = url.Values{}
	}
	return rl.query
}

// Bytes re-serializes the request line, re-encoding the query multimap
// (standard percent-encoding, with one "key=value" pair per list entry).
func (rl *RequestLine) Bytes() []byte {
	u := *rl.URL
	u.RawQuery = rl.query.Encode()
	return []byte(rl.Method + " " + u.String() + " " + rl.Version)
}

func (rl *RequestLine) String() string { return string(rl.Bytes()) }

// StatusLine is a parsed status line, e.g. "HTTP/1.1 200 OK" or
// "ICAP/1.0 204 No Content".
type StatusLine struct {
	Version string
	Code    int
	Reason  string
}

// NewStatusLine builds a StatusLine. If reason is empty, it is looked up
// from the canonical ICAP or HTTP reason-phrase table based on whether
// version starts with "ICAP" or "HTTP".
func NewStatusLine(version string, code int, reason string) *StatusLine {
	if reason == "" {
		if strings.HasPrefix(version, "HTTP") {
			reason = icaperr.HTTPReasons[code]
		} else {
			reason = icaperr.ICAPReasons[code]
		}
	}
	return &StatusLine{Version: version, Code: code, Reason: reason}
}

// ParseStatusLine parses a single "VERSION CODE REASON" line.
func ParseStatusLine(line string) (*StatusLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, icaperr.Errorf(400, "icap: malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, icaperr.Errorf(400, "icap: malformed status code in %q", line)
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return NewStatusLine(parts[0], code, reason), nil
}

// Bytes serializes the status line as "version code reason".
func (sl *StatusLine) Bytes() []byte {
	return []byte(fmt.Sprintf("%s %d %s", sl.Version, sl.Code, sl.Reason))
}

func (sl *StatusLine) String() string { return string(sl.Bytes()) }
