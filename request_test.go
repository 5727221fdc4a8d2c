// Copyright 2011 Andy Balholm. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/phayes/freeport"
)

// Test case for modifying an ICAP request by adding headers
func TestRequestModification(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("could not obtain a free port: %v", err)
	}
	reqTestServerAddr := fmt.Sprintf("localhost:%d", port)

	httpHeaders := "GET /example.html HTTP/1.1\r\n" +
		"Host: www.example.com\r\n" +
		"Accept: text/html\r\n" +
		"\r\n"

	httpBody := "This is a test request body."

	httpHeadersLen := len(httpHeaders)

	request := fmt.Sprintf("REQMOD icap://icap-server.net/modify-request ICAP/1.0\r\n"+
		"Host: icap-server.net\r\n"+
		"Encapsulated: req-hdr=0, req-body=%d\r\n"+
		"\r\n"+
		"%s"+
		"%x\r\n"+
		"%s\r\n"+
		"0\r\n"+
		"\r\n", httpHeadersLen, httpHeaders, len(httpBody), httpBody)

	HandleFuncPath("/modify-request", handleRequestModification)
	go ListenAndServe(reqTestServerAddr, nil)

	// Give the server a moment to start.
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", reqTestServerAddr)
	if err != nil {
		t.Fatalf("could not connect to ICAP server: %s", err)
	}
	defer conn.Close()

	io.WriteString(conn, request)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	respBuffer := make([]byte, 4096)
	n, err := reader.Read(respBuffer)
	if err != nil {
		t.Fatalf("error while reading response: %v", err)
	}

	response := string(respBuffer[:n])
	want := "ICAP/1.0 200 OK\r\n" +
		"Date: Mon, 10 Jan 2000 09:55:21 GMT\r\n" +
		"Server: ICAP-Test-Server/1.0\r\n" +
		"Encapsulated: req-hdr=0, req-body=140\r\n" +
		"\r\n" +
		"GET /example.html HTTP/1.1\r\n" +
		"Host: www.example.com\r\n" +
		"Accept: text/html\r\n" +
		"X-ICAP-Modified: true\r\n" +
		"Via: 1.0 icap-server.net (ICAP Test Server)\r\n" +
		"\r\n" +
		"1c\r\n" +
		"This is a test request body.\r\n" +
		"0\r\n" +
		"\r\n"
	checkString("Response", response, want, t)
}

// Handler for modifying a request
func handleRequestModification(w ResponseWriter, req *ICAPRequest) {
	w.Header().Replace("Date", "Mon, 10 Jan 2000 09:55:21 GMT")
	w.Header().Replace("Server", "ICAP-Test-Server/1.0")

	req.HTTPReq.Headers().Replace("X-ICAP-Modified", "true")
	req.HTTPReq.Headers().Replace("Via", "1.0 icap-server.net (ICAP Test Server)")

	w.WriteHeader(200, req.HTTPReq, true)
	w.Write(req.HTTPReq.BodyBytes())
}
