// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The wire protocol for ICAP's chunked body framing, including the
// "ieof" chunk extension used by Preview negotiation.
// Derived from the standard library's http/httputil/chunked.go.

package icap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const maxLineLength = 4096 // assumed <= bufio.defaultBufSize

var errLineTooLong = errors.New("header line too long")

// chunkedReader decodes one ICAP chunked body segment: it returns io.EOF
// once the terminating zero-size chunk has been read and its trailing
// blank line consumed. ieof reports whether that terminator carried the
// "ieof" chunk extension.
type chunkedReader struct {
	r    *bufio.Reader
	n    uint64 // unread bytes in current chunk
	err  error
	ieof bool
	buf  [2]byte
}

func newChunkedReader(r *bufio.Reader) *chunkedReader {
	return &chunkedReader{r: r}
}

func (cr *chunkedReader) beginChunk() {
	var line []byte
	line, cr.err = readLine(cr.r)
	if cr.err != nil {
		return
	}
	size, ext := splitChunkExt(line)
	cr.n, cr.err = parseHexUint(size)
	if cr.err != nil {
		return
	}
	if cr.n == 0 {
		cr.ieof = strings.Contains(strings.ToLower(string(ext)), "ieof")
		// Consume the blank line terminating the (trailer-less) body.
		if _, terr := readLine(cr.r); terr != nil {
			cr.err = terr
			return
		}
		cr.err = io.EOF
	}
}

func splitChunkExt(line []byte) (size, ext []byte) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		return bytes.TrimSpace(line[:i]), line[i+1:]
	}
	return line, nil
}

func (cr *chunkedReader) Read(b []uint8) (n int, err error) {
	if cr.err != nil {
		return 0, cr.err
	}
	if cr.n == 0 {
		cr.beginChunk()
		if cr.err != nil {
			return 0, cr.err
		}
	}
	if uint64(len(b)) > cr.n {
		b = b[0:cr.n]
	}
	n, cr.err = cr.r.Read(b)
	cr.n -= uint64(n)
	if cr.n == 0 && cr.err == nil {
		// end of chunk (CRLF)
		if _, cr.err = io.ReadFull(cr.r, cr.buf[:]); cr.err == nil {
			if cr.buf[0] != '\r' || cr.buf[1] != '\n' {
				cr.err = errors.New("icap: malformed chunked encoding")
			}
		}
	}
	return n, cr.err
}

// readBodySegment reads one complete chunked segment from br: either the
// whole body (when there is no Preview in play), the previewed prefix,
// or the post-Continue remainder. It returns the accumulated bytes and
// whether the terminating chunk carried the "ieof" extension.
func readBodySegment(br *bufio.Reader) ([]byte, bool, error) {
	cr := newChunkedReader(br)
	var buf bytes.Buffer
	_, err := io.Copy(&buf, cr)
	if err != nil && err != io.EOF {
		return nil, false, err
	}
	return buf.Bytes(), cr.ieof, nil
}

// readBodySegmentLimit reads one complete Preview chunked segment — the
// client always terminates it with its own zero-size chunk, whether or
// not the preview covers the whole body, so this always reads through
// to (and consumes) that terminator rather than stopping partway
// through a chunk. limit bounds how much body the negotiated Preview
// size allows; a compliant client never exceeds it, so exceeding it is
// reported as an error rather than silently truncated — truncating
// instead of consuming the real terminator would leave it sitting in
// br for the next read to misinterpret as the post-Continue remainder.
// complete reports whether the segment's own terminator carried ieof,
// i.e. whether the preview was the entire body.
func readBodySegmentLimit(br *bufio.Reader, limit int) (data []byte, ieof bool, complete bool, err error) {
	data, ieof, err = readBodySegment(br)
	if err != nil {
		return nil, false, false, err
	}
	if len(data) > limit {
		return nil, false, false, fmt.Errorf("icap: preview body (%d bytes) exceeds negotiated size %d", len(data), limit)
	}
	return data, ieof, ieof, nil
}

// Read a line of bytes (up to \n) from b.
// Give up if the line exceeds maxLineLength.
// The returned bytes are a pointer into storage in
// the bufio, so they are only valid until the next bufio read.
func readLine(b *bufio.Reader) (p []byte, err error) {
	if p, err = b.ReadSlice('\n'); err != nil {
		// We always know when EOF is coming.
		// If the caller asked for a line, there should be a line.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		} else if err == bufio.ErrBufferFull {
			err = errLineTooLong
		}
		return nil, err
	}
	if len(p) >= maxLineLength {
		return nil, errLineTooLong
	}
	return trimTrailingWhitespace(p), nil
}

func trimTrailingWhitespace(b []byte) []byte {
	for len(b) > 0 && isASCIISpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// NewChunkedWriter returns a new chunkedWriter that translates writes into
// ICAP/HTTP "chunked" format before writing them to w. Closing the
// returned chunkedWriter sends the final zero-length chunk that marks
// the end of the stream.
func NewChunkedWriter(w io.Writer) io.WriteCloser {
	return &chunkedWriter{w}
}

// Writing to chunkedWriter translates to writing in ICAP chunked
// Transfer-Encoding wire format to the underlying Wire.
type chunkedWriter struct {
	Wire io.Writer
}

// Write writes the contents of data as one chunk to Wire.
func (cw *chunkedWriter) Write(data []byte) (n int, err error) {
	// Don't send 0-length data. It looks like EOF for chunked encoding.
	if len(data) == 0 {
		return 0, nil
	}

	if _, err = fmt.Fprintf(cw.Wire, "%x\r\n", len(data)); err != nil {
		return 0, err
	}
	if n, err = cw.Wire.Write(data); err != nil {
		return
	}
	if n != len(data) {
		err = io.ErrShortWrite
		return
	}
	_, err = io.WriteString(cw.Wire, "\r\n")

	return
}

func (cw *chunkedWriter) Close() error {
	_, err := io.WriteString(cw.Wire, "0\r\n\r\n")
	return err
}

func parseHexUint(v []byte) (n uint64, err error) {
	if len(v) == 0 {
		return 0, fmt.Errorf("icap: empty chunk length")
	}
	for _, b := range v {
		n <<= 4
		switch {
		case '0' <= b && b <= '9':
			b = b - '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, fmt.Errorf("icap: invalid chunk length: '%s'", v)
		}
		n |= uint64(b)
	}
	return
}
