package icap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/phayes/freeport"
)

// SimulateRequestHandling registers handler for the path "/modify" on
// DefaultServeMux, starts a throwaway server for it on a free local TCP
// port, sends it one hand-built REQMOD or RESPMOD request assembled from
// icapMethod, inputHttpHeaders, httpBody and xUrl, and returns the raw
// response bytes it gets back. For any other icapMethod, OPTIONS
// included, it sends nothing and returns an empty string. It exists so
// library consumers can exercise a handler end to end without writing
// their own server setup and ICAP client.
func SimulateRequestHandling(icapMethod string, inputHttpHeaders []string, httpBody string, xUrl string, handler func(ResponseWriter, *ICAPRequest)) (string, error) {
	request := ""
	switch icapMethod {
	case "OPTIONS":
		return "", nil
	case "REQMOD":
		httpHeaders := ""
		for _, arg := range inputHttpHeaders {
			httpHeaders = httpHeaders + arg + "\r\n"
		}
		httpHeaders += "\r\n"

		httpHeadersLen := len(httpHeaders)
		request = fmt.Sprintf("REQMOD icap://icap-server.net/modify ICAP/1.0\r\n"+
			"Host: icap-server.net\r\n"+
			Optional(xUrl != "", fmt.Sprintf("X-Original-URL: %s\r\n", xUrl), "")+
			Optional(httpBody != "", fmt.Sprintf("Encapsulated: req-hdr=0, req-body=%d\r\n", httpHeadersLen), "Encapsulated: req-hdr=0")+
			"\r\n"+
			"%s"+
			"%x\r\n"+
			"%s\r\n"+
			"0\r\n"+
			"\r\n", httpHeaders, len(httpBody), httpBody)

	case "RESPMOD":
		httpHeaders := ""
		for _, arg := range inputHttpHeaders {
			httpHeaders = httpHeaders + arg + "\r\n"
		}
		httpHeaders += fmt.Sprintf("Content-Length: %d\r\n", len(httpBody))
		httpHeaders += "\r\n"

		httpHeadersLen := len(httpHeaders)

		request = fmt.Sprintf("RESPMOD icap://icap-server.net/modify ICAP/1.0\r\n"+
			"Host: icap-server.net\r\n"+
			Optional(xUrl != "", fmt.Sprintf("X-ICAP-Request-URL: %s\r\n", xUrl), "")+
			Optional(httpBody != "", fmt.Sprintf("Encapsulated: res-hdr=0, res-body=%d\r\n", httpHeadersLen), "Encapsulated: res-hdr=0")+
			"\r\n"+
			"%s"+
			"%x\r\n"+
			"%s\r\n"+
			"0\r\n"+
			"\r\n", httpHeaders, len(httpBody), httpBody)
	default:
		return "", nil
	}

	port, err := freeport.GetFreePort()
	if err != nil {
		return "", err
	}
	addr := fmt.Sprintf("localhost:%d", port)

	HandleFuncPath("/modify", handler)
	go ListenAndServe(addr, nil)

	// Give the server a moment to start.
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	io.WriteString(conn, request)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	respBuffer := make([]byte, 4096)
	n, err := reader.Read(respBuffer)
	if err != nil {
		return "", err
	}

	return string(respBuffer[:n]), nil
}

// Optional returns a if condition is true, b otherwise.
func Optional(condition bool, a string, b string) string {
	if condition {
		return a
	}
	return b
}
