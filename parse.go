package icap

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/icapforge/icap/icaperr"
)

// encapsulatedEntry is one "name=offset" pair from the Encapsulated:
// header, in the order it appeared.
type encapsulatedEntry struct {
	name   string
	offset int
}

var encapsulatedNames = map[string]bool{
	"req-hdr":   true,
	"req-body":  true,
	"res-hdr":   true,
	"res-body":  true,
	"null-body": true,
	"opt-body":  true,
}

// parseEncapsulated parses the value of an Encapsulated: header into its
// ordered list of (name, offset) entries, validating that every name is
// known and that offsets are strictly non-decreasing.
func parseEncapsulated(value string) ([]encapsulatedEntry, error) {
	parts := strings.Split(value, ",")
	entries := make([]encapsulatedEntry, 0, len(parts))
	prevOffset := -1
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, icaperr.Errorf(400, "icap: malformed Encapsulated entry %q", part)
		}
		name := part[:eq]
		if !encapsulatedNames[name] {
			return nil, icaperr.Errorf(400, "icap: unknown Encapsulated key %q", name)
		}
		offset, err := strconv.Atoi(part[eq+1:])
		if err != nil || offset < 0 {
			return nil, icaperr.Errorf(400, "icap: malformed Encapsulated offset in %q", part)
		}
		if offset < prevOffset {
			return nil, icaperr.Errorf(400, "icap: Encapsulated offsets must be non-decreasing")
		}
		prevOffset = offset
		entries = append(entries, encapsulatedEntry{name: name, offset: offset})
	}
	if len(entries) == 0 {
		return nil, icaperr.Errorf(400, "icap: empty Encapsulated header")
	}
	return entries, nil
}

// sectionLengths derives the byte length of each header block named in
// entries, plus which body entry terminates the list.
type sectionLengths struct {
	reqHdrLen int
	resHdrLen int
	bodyKind  string // "req-body", "res-body", "opt-body" or "null-body"
}

func (e encapsulatedEntry) isBody() bool {
	return e.name == "req-body" || e.name == "res-body" || e.name == "opt-body" || e.name == "null-body"
}

func computeSectionLengths(entries []encapsulatedEntry) (sectionLengths, error) {
	var sl sectionLengths
	if entries[0].offset != 0 {
		return sl, icaperr.Errorf(400, "icap: Encapsulated must start at offset 0")
	}
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.isBody() {
			return sl, icaperr.Errorf(400, "icap: %s must be the last Encapsulated entry", prev.name)
		}
		length := cur.offset - prev.offset
		switch prev.name {
		case "req-hdr":
			sl.reqHdrLen = length
		case "res-hdr":
			sl.resHdrLen = length
		}
	}
	last := entries[len(entries)-1]
	if last.isBody() {
		sl.bodyKind = last.name
	} else {
		// A header-only list with no terminal marker is malformed: every
		// Encapsulated list must end in a body/null-body/opt-body entry.
		return sl, icaperr.Errorf(400, "icap: Encapsulated missing terminal body marker")
	}
	return sl, nil
}

// readICAPPreamble reads and parses one ICAP request preamble (request
// line and headers, up to and including the blank line) from br.
func readICAPPreamble(br *bufio.Reader) (*ICAPRequest, error) {
	block, err := readUntilBlankLine(br)
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	lines := bytes.Split(block, []byte("\r\n"))
	if len(lines) == 0 || len(lines[0]) == 0 {
		return nil, icaperr.New(400)
	}
	line, err := ParseRequestLine(string(lines[0]))
	if err != nil {
		return nil, err
	}
	headers, err := ParseHeaders(bytes.Join(lines[1:], []byte("\r\n")))
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	req := NewICAPRequest(line)
	req.Headers = headers

	switch line.Method {
	case "REQMOD", "RESPMOD", "OPTIONS":
	default:
		return nil, icaperr.ErrUnknownMethod
	}

	if preview, ok := headers.Get("Preview"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(preview))
		if err != nil || n < 0 {
			return nil, icaperr.Errorf(400, "icap: malformed Preview header %q", preview)
		}
		req.Preview = n
	}

	return req, nil
}

// readUntilBlankLine reads bytes from br up to and including the first
// "\r\n\r\n", returning everything before that terminator.
func readUntilBlankLine(br *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			return buf.Bytes(), nil
		}
		if buf.Len() > 0 {
			buf.WriteString("\r\n")
		}
		buf.Write(line)
	}
}

// splitHTTPPreamble splits a raw encapsulated HTTP header block into its
// first line (request-line or status-line) and the remaining header
// bytes.
func splitHTTPPreamble(raw []byte) (first []byte, rest []byte) {
	idx := bytes.Index(raw, []byte("\r\n"))
	if idx < 0 {
		return raw, nil
	}
	return raw[:idx], raw[idx+2:]
}

func parseEncapsulatedHTTPRequest(raw []byte) (*HTTPRequest, error) {
	first, rest := splitHTTPPreamble(raw)
	line, err := ParseRequestLine(string(first))
	if err != nil {
		return nil, err
	}
	headers, err := ParseHeaders(rest)
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	return NewHTTPRequest(line, headers, nil), nil
}

func parseEncapsulatedHTTPResponse(raw []byte) (*HTTPResponse, error) {
	first, rest := splitHTTPPreamble(raw)
	line, err := ParseStatusLine(string(first))
	if err != nil {
		return nil, err
	}
	headers, err := ParseHeaders(rest)
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	return NewHTTPResponse(line, headers, nil), nil
}
