package icap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
)

func TestServerRoutesSeedEmptyForDefaultServeMux(t *testing.T) {
	srv := &Server{}
	assert.Equal(t, "", srv.routesSeed())
}

func TestServerRoutesSeedUsesOwnMux(t *testing.T) {
	mux := NewServeMux()
	mux.HandleFuncPath("/scan", func(ResponseWriter, *ICAPRequest) {})

	srv := &Server{Handler: mux}
	assert.Equal(t, mux.routesSignature(), srv.routesSeed())
	assert.NotEqual(t, "", srv.routesSeed())
}

func TestServeOptionsAdvertisesMandatoryHeaders(t *testing.T) {
	mux := NewServeMux()
	mux.HandleFuncPath("/scan", func(ResponseWriter, *ICAPRequest) {})

	port, err := freeport.GetFreePort()
	assert.NoError(t, err)
	addr := fmt.Sprintf("localhost:%d", port)

	srv := &Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer conn.Close()

	request := "OPTIONS icap://host/scan ICAP/1.0\r\n" +
		"Host: host\r\n" +
		"\r\n"
	io.WriteString(conn, request)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	var headers []byte
	for {
		line, err := reader.ReadString('\n')
		assert.NoError(t, err)
		headers = append(headers, line...)
		if line == "\r\n" {
			break
		}
	}

	out := string(headers)
	assert.Contains(t, out, "ICAP/1.0 200")
	// §6 / scenario 1: a bodiless OPTIONS response still carries Encapsulated.
	assert.Contains(t, out, "Encapsulated: null-body=0")
	// §4.6 step 2: Preview is mandatory even when unconfigured (0).
	assert.Contains(t, out, "Preview: 0")
	assert.Contains(t, out, "Allow: 204")
	assert.Contains(t, out, "Methods: REQMOD, RESPMOD")
}

func TestHandlerPanicRecoversInto500(t *testing.T) {
	mux := NewServeMux()
	mux.HandleFuncPath("/panics", func(ResponseWriter, *ICAPRequest) {
		panic("boom")
	})

	port, err := freeport.GetFreePort()
	assert.NoError(t, err)
	addr := fmt.Sprintf("localhost:%d", port)

	srv := &Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer conn.Close()

	request := "REQMOD icap://host/panics ICAP/1.0\r\n" +
		"Host: host\r\n" +
		"Encapsulated: null-body=0\r\n" +
		"\r\n"
	io.WriteString(conn, request)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Contains(t, line, "500")
}
