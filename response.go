package icap

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/icapforge/icap/icaperr"
	"github.com/icapforge/icap/istag"
)

// ResponseWriter is used by a Handler to construct an ICAP response.
//
// Header returns the headers that will be sent; a handler may add to it
// before calling WriteHeader. WriteHeader commits the status line and
// the encapsulated HTTP preamble (if any); after that, Write sends body
// bytes as chunks. NoModification and Continue cover the two cases
// that short-circuit normal serialization: declining to adapt the
// message, and asking the client for the rest of a previewed body.
type ResponseWriter interface {
	// Header returns the headers that will be written. Must be called
	// before WriteHeader to have any effect.
	Header() *HeadersDict

	// WriteHeader commits the ICAP status code and the encapsulated
	// HTTP message (http may be nil for a bodiless response such as a
	// 204 or an error). hasBody declares whether body bytes will follow
	// via Write.
	WriteHeader(code int, http HTTPMessage, hasBody bool)

	// Write sends body bytes as one or more chunks. WriteHeader must
	// have been called first with hasBody true.
	Write(p []byte) (int, error)

	// NoModification writes a 204 response if the request allows one,
	// or otherwise a 200 response that echoes the original message
	// unchanged, exactly as received (including any body already read).
	NoModification() error

	// Continue sends "ICAP/1.0 100 Continue" and reads the remainder of
	// a previewed body into the request's encapsulated HTTP message. It
	// is only valid when the request was truncated by Preview and did
	// not already reach ieof.
	Continue() error
}

type respWriter struct {
	bw  *bufio.Writer
	br  *bufio.Reader
	req   *ICAPRequest
	hooks *Hooks

	// routesSeed derives the default ISTag when no is_tag hook supplies
	// one: a content hash of the registered routes, so the value tracks
	// the running configuration without any handler-supplied hook.
	routesSeed string

	header      *HeadersDict
	wroteHeader bool

	chunkW io.WriteCloser
}

func newRespWriter(bw *bufio.Writer, br *bufio.Reader, req *ICAPRequest, hooks *Hooks) *respWriter {
	return &respWriter{bw: bw, br: br, req: req, hooks: hooks, header: NewHeadersDict()}
}

func newRespWriterWithSeed(bw *bufio.Writer, br *bufio.Reader, req *ICAPRequest, hooks *Hooks, routesSeed string) *respWriter {
	w := newRespWriter(bw, br, req, hooks)
	w.routesSeed = routesSeed
	return w
}

func (w *respWriter) Header() *HeadersDict { return w.header }

func (w *respWriter) WriteHeader(code int, http HTTPMessage, hasBody bool) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	resp := NewICAPResponse(NewStatusLine("ICAP/1.0", code, ""))
	resp.Headers = w.header
	if !resp.Headers.Has("Date") {
		resp.Headers.Replace("Date", time.Now().UTC().Format(http1Date))
	}
	if !resp.Headers.Has("ISTag") {
		tag := ""
		if w.hooks != nil {
			tag = w.hooks.ISTag(w.req)
		}
		if tag == "" && w.routesSeed != "" {
			tag = istag.Default(w.routesSeed)
		}
		if tag != "" {
			resp.Headers.Replace("ISTag", `"`+tag+`"`)
		}
	}

	switch m := http.(type) {
	case *HTTPRequest:
		resp.HTTPReq = m
	case *HTTPResponse:
		resp.HTTPResp = m
	}

	if w.hooks != nil {
		w.hooks.BeforeSerialization(w.req, resp)
	}
	if resp.HTTPReq != nil {
		resp.HTTPReq.PreSerialize()
	}
	if resp.HTTPResp != nil {
		resp.HTTPResp.PreSerialize()
	}

	preamble, encValue := encapsulatedPreamble(resp, hasBody, code)
	if encValue != "" {
		resp.Headers.Replace("Encapsulated", encValue)
	}

	w.bw.Write(resp.StatusLine.Bytes())
	w.bw.WriteString("\r\n")
	w.bw.Write(resp.Headers.Bytes())
	w.bw.WriteString("\r\n")

	if preamble != nil {
		w.bw.Write(preamble)
	}
	if hasBody {
		w.chunkW = NewChunkedWriter(w.bw)
	}
}

func (w *respWriter) Write(p []byte) (int, error) {
	if w.chunkW == nil {
		return 0, icaperr.Errorf(500, "icap: Write called with no body declared")
	}
	return w.chunkW.Write(p)
}

// finish flushes any open chunked body and the underlying buffered
// writer. Must be called once per transaction after the handler and any
// NoModification/error path have run.
func (w *respWriter) finish() error {
	if w.chunkW != nil {
		if err := w.chunkW.Close(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

func (w *respWriter) NoModification() error {
	if w.req.AllowsNoContent() {
		w.WriteHeader(204, nil, false)
		return w.finish()
	}

	var http HTTPMessage
	if w.req.IsRESPMOD() {
		http = w.req.HTTPResp
	} else {
		http = w.req.HTTPReq
	}
	w.WriteHeader(200, http, http != nil && len(http.BodyBytes()) > 0)
	if http != nil {
		if _, err := w.Write(http.BodyBytes()); err != nil {
			return err
		}
	}
	return w.finish()
}

func (w *respWriter) Continue() error {
	if w.req.Preview < 0 || w.req.PreviewEOF {
		return icaperr.Errorf(500, "icap: Continue called without a pending preview remainder")
	}

	if _, err := w.bw.WriteString("ICAP/1.0 100 Continue\r\n\r\n"); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}

	rest, ieof, err := readBodySegment(w.br)
	if err != nil {
		return icaperr.Wrap(400, err)
	}

	var target HTTPMessage
	if w.req.IsRESPMOD() {
		target = w.req.HTTPResp
	} else {
		target = w.req.HTTPReq
	}
	if target != nil {
		target.SetBodyBytes(append(target.BodyBytes(), rest...))
	}
	w.req.PreviewEOF = ieof
	return nil
}

// http1Date is the wire format for the Date header, matching RFC 7231
// and the original's %a, %d %b %Y %H:%M:%S GMT.
const http1Date = "Mon, 02 Jan 2006 15:04:05 GMT"

// encapsulatedPreamble serializes the HTTP sub-message(s) carried by
// resp and builds the matching Encapsulated header value. A RESPMOD
// response that carries the original request's preamble
// (resp.HTTPResp.RequestLine / RequestHeaders) echoes it ahead of the
// res-hdr block as its own req-hdr entry, per RFC 3507 §4.2 — the two
// blocks get independent offsets, not one merged length.
//
// A response with no encapsulated HTTP message at all (OPTIONS, or any
// other bodiless non-204 reply) still must carry an Encapsulated header
// per §4.2/§6: "null-body=0". 204 is the one status that legitimately
// omits Encapsulated entirely.
func encapsulatedPreamble(resp *ICAPResponse, hasBody bool, code int) (preamble []byte, encValue string) {
	var entries []string
	var bodyKind string

	switch {
	case resp.HTTPReq != nil:
		preamble = resp.HTTPReq.preamble()
		entries = append(entries, "req-hdr=0")
		if hasBody {
			bodyKind = "req-body"
		} else {
			bodyKind = "null-body"
		}

	case resp.HTTPResp != nil:
		if resp.HTTPResp.RequestLine != nil && resp.HTTPResp.RequestHeaders != nil && resp.HTTPResp.RequestHeaders.Len() > 0 {
			reqBlock := append(resp.HTTPResp.RequestLine.Bytes(), "\r\n"...)
			reqBlock = append(reqBlock, resp.HTTPResp.RequestHeaders.Bytes()...)
			reqBlock = append(reqBlock, "\r\n"...)
			preamble = reqBlock
			entries = append(entries, "req-hdr=0")
		}
		resBlock := resp.HTTPResp.preamble()
		entries = append(entries, fmt.Sprintf("res-hdr=%d", len(preamble)))
		preamble = append(preamble, resBlock...)
		if hasBody {
			bodyKind = "res-body"
		} else {
			bodyKind = "null-body"
		}

	default:
		if code == 204 {
			return nil, ""
		}
		return nil, "null-body=0"
	}

	entries = append(entries, fmt.Sprintf("%s=%d", bodyKind, len(preamble)))
	return preamble, strings.Join(entries, ", ")
}
