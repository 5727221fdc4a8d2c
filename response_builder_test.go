package icap

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRespWriter(req *ICAPRequest) (*respWriter, *bytes.Buffer) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	br := bufio.NewReader(strings.NewReader(""))
	return newRespWriter(bw, br, req, NewHooks()), &out
}

func TestWriteHeaderOmitsEncapsulatedWhenNoHTTPMessage(t *testing.T) {
	rl, err := ParseRequestLine("REQMOD icap://icap-server.net/modify ICAP/1.0")
	assert.NoError(t, err)
	req := NewICAPRequest(rl)
	w, out := newTestRespWriter(req)
	w.Header().Replace("Date", "Mon, 10 Jan 2000 09:55:21 GMT")
	w.WriteHeader(204, nil, false)
	assert.NoError(t, w.finish())

	assert.Contains(t, out.String(), "ICAP/1.0 204 No Content")
	assert.NotContains(t, out.String(), "Encapsulated")
}

func TestWriteHeaderEmitsNullBodyForBodilessNon204(t *testing.T) {
	rl, _ := ParseRequestLine("REQMOD icap://icap-server.net/modify ICAP/1.0")
	req := NewICAPRequest(rl)
	w, out := newTestRespWriter(req)
	w.WriteHeader(200, nil, false)
	assert.NoError(t, w.finish())

	assert.Contains(t, out.String(), "ICAP/1.0 200")
	assert.Contains(t, out.String(), "Encapsulated: null-body=0")
}

func TestNoModificationSends204WhenAllowed(t *testing.T) {
	rl, _ := ParseRequestLine("REQMOD icap://host/modify ICAP/1.0")
	req := NewICAPRequest(rl)
	req.Headers.Replace("Allow", "204")
	req.HTTPReq = NewHTTPRequest(nil, nil, []byte("hello"))

	w, out := newTestRespWriter(req)
	assert.NoError(t, w.NoModification())
	assert.Contains(t, out.String(), "ICAP/1.0 204 No Content")
}

func TestWriteHeaderDerivesDefaultISTagFromRoutesSeed(t *testing.T) {
	rl, _ := ParseRequestLine("REQMOD icap://host/modify ICAP/1.0")
	req := NewICAPRequest(rl)

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	br := bufio.NewReader(strings.NewReader(""))
	w := newRespWriterWithSeed(bw, br, req, NewHooks(), "REQMOD||/reqmod|")
	w.WriteHeader(200, nil, false)
	assert.NoError(t, w.finish())

	assert.Contains(t, out.String(), "ISTag:")
}

// TestPreviewThenContinueReadsRemainderWithoutDesync drives RFC 3507
// scenario 4 end to end: a 4-byte preview that is not the whole body,
// a 100 Continue, and a 6-byte remainder — verifying the remainder is
// read as its own chunked stream immediately after the preview segment,
// rather than seeing the preview's own already-consumed terminator.
func TestPreviewThenContinueReadsRemainderWithoutDesync(t *testing.T) {
	wire := "4\r\nabcd\r\n0\r\n\r\n" + // 4-byte preview, not ieof
		"6\r\nefghij\r\n0; ieof\r\n\r\n" // remainder, whole body now sent
	br := bufio.NewReader(strings.NewReader(wire))

	data, ieof, complete, err := readBodySegmentLimit(br, 4)
	assert.NoError(t, err)
	assert.False(t, ieof)
	assert.False(t, complete)
	assert.Equal(t, "abcd", string(data))

	rl, _ := ParseRequestLine("REQMOD icap://host/scan ICAP/1.0")
	req := NewICAPRequest(rl)
	req.Preview = 4
	req.PreviewEOF = complete
	req.HTTPReq = NewHTTPRequest(nil, nil, data)

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	w := newRespWriter(bw, br, req, NewHooks())

	assert.NoError(t, w.Continue())
	assert.Contains(t, out.String(), "ICAP/1.0 100 Continue\r\n\r\n")
	assert.True(t, req.PreviewEOF)
	assert.Equal(t, "abcdefghij", string(req.HTTPReq.BodyBytes()))
}

func TestNoModificationEchoesBodyWhen204NotAllowed(t *testing.T) {
	rl, _ := ParseRequestLine("REQMOD icap://host/modify ICAP/1.0")
	req := NewICAPRequest(rl)
	req.HTTPReq = NewHTTPRequest(nil, nil, []byte("hello"))

	w, out := newTestRespWriter(req)
	assert.NoError(t, w.NoModification())
	assert.Contains(t, out.String(), "ICAP/1.0 200 OK")
	assert.Contains(t, out.String(), "hello")
}
