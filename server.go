// Copyright 2011 Andy Balholm. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Network connections and request dispatch for the ICAP server.

package icap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/icapforge/icap/icaperr"
)

// A conn represents the server side of an ICAP connection.
type conn struct {
	remoteAddr string
	srv        *Server
	rwc        net.Conn
	br         *bufio.Reader
	bw         *bufio.Writer
}

func newConn(rwc net.Conn, srv *Server) *conn {
	return &conn{
		remoteAddr: rwc.RemoteAddr().String(),
		srv:        srv,
		rwc:        rwc,
		br:         bufio.NewReader(rwc),
		bw:         bufio.NewWriter(rwc),
	}
}

func (c *conn) close() {
	c.bw.Flush()
	c.rwc.Close()
}

// serve runs the per-connection pipeline: IDLE -> READ_ICAP ->
// READ_HTTP_PREAMBLE -> [READ_PREVIEW] -> DISPATCH -> BUILD -> WRITE ->
// IDLE, looping for as many pipelined transactions as the client sends,
// until a parse error, a Connection: close, a failed read (including an
// idle timeout) or the client closing the connection. Closing the
// listener does not end this loop.
func (c *conn) serve() {
	defer func() {
		if r := recover(); r != nil {
			var buf bytes.Buffer
			fmt.Fprintf(&buf, "icap: panic serving %v: %v\n", c.remoteAddr, r)
			buf.Write(debug.Stack())
			log.Print(buf.String())
		}
		c.close()
	}()

	for {
		if c.srv.IdleTimeout > 0 {
			c.rwc.SetReadDeadline(time.Now().Add(c.srv.IdleTimeout))
		}

		if _, err := c.br.Peek(1); err != nil {
			// Client closed the connection between pipelined
			// transactions; nothing more to do.
			return
		}

		req, err := ReadRequest(c.br)
		if err != nil {
			c.writeError(err)
			return
		}
		req.RemoteAddr = c.remoteAddr

		if c.srv.ReadTimeout > 0 {
			c.rwc.SetReadDeadline(time.Now().Add(c.srv.ReadTimeout))
		}
		if c.srv.WriteTimeout > 0 {
			c.rwc.SetWriteDeadline(time.Now().Add(c.srv.WriteTimeout))
		}

		closeAfter := shouldCloseAfter(req)

		if req.IsOPTIONS() {
			c.serveOptions(req)
		} else {
			c.serveTransaction(req)
		}

		if err := c.bw.Flush(); err != nil {
			return
		}
		if closeAfter {
			return
		}
	}
}

func shouldCloseAfter(req *ICAPRequest) bool {
	conn := req.Headers.GetDefault("Connection", "")
	return conn == "close"
}

func (c *conn) writeError(err error) {
	code := icaperr.StatusCode(err)
	line := NewStatusLine("ICAP/1.0", code, "")
	fmt.Fprintf(c.bw, "%s\r\n", line.String())
	fmt.Fprintf(c.bw, "Date: %s\r\n", time.Now().UTC().Format(http1Date))
	fmt.Fprintf(c.bw, "Encapsulated: null-body=0\r\n\r\n")
	c.bw.Flush()
}

func (c *conn) serveOptions(req *ICAPRequest) {
	mux := c.srv.mux()
	w := newRespWriterWithSeed(c.bw, c.br, req, c.srv.hooks(), c.srv.routesSeed())
	h := w.Header()

	methods := mux.registeredMethods(req.RequestLine.URL.Path)
	if len(methods) == 0 {
		methods = []string{"REQMOD", "RESPMOD"}
	}
	h.Replace("Methods", joinComma(methods))
	h.Replace("Allow", "204")
	h.Replace("Options-TTL", fmt.Sprintf("%d", c.srv.optionsTTL()))
	// Preview is mandatory in the OPTIONS response (RFC 3507 §4.6 step 2)
	// even when no Preview is configured: 0 means "always preview 0 bytes",
	// which is a legitimate negotiated value, not "Preview unsupported".
	h.Replace("Preview", fmt.Sprintf("%d", c.srv.previewSize()))
	if mc := c.srv.MaxConnections; mc > 0 {
		h.Replace("Max-Connections", fmt.Sprintf("%d", mc))
	}
	for name, val := range c.srv.hooks().OptionsHeaders() {
		h.Replace(name, val)
	}

	w.WriteHeader(200, nil, false)
	if err := w.finish(); err != nil {
		log.Printf("icap: write error to %v: %v", c.remoteAddr, err)
	}
}

func (c *conn) serveTransaction(req *ICAPRequest) {
	hooks := c.srv.hooks()
	hooks.BeforeHandling(req)

	handler := c.srv.mux().Match(req)
	if handler == nil {
		c.writeError(icaperr.ErrNoHandler)
		return
	}

	w := newRespWriterWithSeed(c.bw, c.br, req, hooks, c.srv.routesSeed())
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("icap: handler panic: %v\nrequest:\n%s", r, spew.Sdump(req))
				if !w.wroteHeader {
					c.writeError(icaperr.Errorf(500, "icap: handler panic: %v", r))
					w.wroteHeader = true
				}
			}
		}()
		handler.ServeICAP(w, req)
	}()

	var err error
	if !w.wroteHeader {
		err = w.NoModification()
	} else {
		err = w.finish()
	}
	if err != nil {
		log.Printf("icap: write error to %v: %v", c.remoteAddr, err)
	}
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// A Server defines parameters for running an ICAP server.
type Server struct {
	Addr    string   // TCP address to listen on, ":1344" if empty
	Handler *ServeMux // request matcher/dispatcher; DefaultServeMux if nil
	Hooks   *Hooks    // extension points; DefaultHooks if nil

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxConnections int // advertised in OPTIONS responses; 0 means unset
	OptionsTTL     int // seconds; defaults to 3600
	PreviewSize    int // advertised in OPTIONS responses; 0 is a valid negotiated size

	mu       sync.Mutex
	listener net.Listener
}

func (srv *Server) mux() *ServeMux {
	if srv.Handler != nil {
		return srv.Handler
	}
	return DefaultServeMux
}

func (srv *Server) hooks() *Hooks {
	if srv.Hooks != nil {
		return srv.Hooks
	}
	return DefaultHooks
}

func (srv *Server) optionsTTL() int {
	if srv.OptionsTTL > 0 {
		return srv.OptionsTTL
	}
	return 3600
}

func (srv *Server) previewSize() int { return srv.PreviewSize }

// routesSeed returns the content-hash seed for the default ISTag, or ""
// to leave ISTag unset absent an is_tag hook. It only applies when the
// Server was given its own ServeMux: the implicit DefaultServeMux is a
// process-wide table that other Servers and tests may also register
// against, so its route set is not a meaningful per-server fingerprint.
func (srv *Server) routesSeed() string {
	if srv.Handler == nil {
		return ""
	}
	return srv.Handler.routesSignature()
}

// ListenAndServe listens on the TCP network address srv.Addr and then
// calls Serve to handle requests on incoming connections. If srv.Addr
// is blank, ":1344" is used.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":1344"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return srv.Serve(l)
}

// Serve accepts incoming connections on the Listener l, creating a new
// goroutine for each. The goroutines read requests and dispatch them
// through srv.Handler (or DefaultServeMux).
func (srv *Server) Serve(l net.Listener) error {
	srv.mu.Lock()
	srv.listener = l
	srv.mu.Unlock()
	defer l.Close()

	for {
		rw, err := l.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}
		c := newConn(rw, srv)
		go c.serve()
	}
}

// Shutdown closes the listener so no new connections are accepted. It
// neither waits for nor closes connections already accepted: they keep
// being served until the client closes them or a read fails. ctx is not
// used.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	l := srv.listener
	srv.listener = nil
	srv.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}

// Serve accepts incoming ICAP connections on the listener l, creating a
// new goroutine for each, and dispatches through handler.
func Serve(l net.Listener, handler *ServeMux) error {
	srv := &Server{Handler: handler}
	return srv.Serve(l)
}

// ListenAndServe listens on the TCP network address addr and then calls
// Serve with handler to handle requests on incoming connections.
func ListenAndServe(addr string, handler *ServeMux) error {
	server := &Server{Addr: addr, Handler: handler}
	return server.ListenAndServe()
}
