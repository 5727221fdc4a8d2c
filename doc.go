/*
Package icap implements the Internet Content Adaptation Protocol (ICAP) as
defined in RFC 3507.

ICAP is a protocol that allows edge devices such as proxies to offload tasks
to dedicated adaptation servers. It is commonly used for content filtering,
antivirus scanning, ad insertion, and other content adaptation services.

This package provides the server side of the protocol: a wire parser and
serializer for ICAP and its encapsulated HTTP messages, Preview and
204-No-Content negotiation, a handler-dispatch layer keyed on the ICAP
request URI, and a hook table for customizing OPTIONS responses, ISTag
values, and pre/post-handling behavior.

Basic usage example:

	package main

	import (
		"fmt"

		"github.com/icapforge/icap"
		"github.com/icapforge/icap/criteria"
	)

	func main() {
		icap.HandleFunc(criteria.Path("/example"), exampleHandler)
		fmt.Println("Starting ICAP server on port 1344...")
		if err := icap.ListenAndServe(":1344", nil); err != nil {
			fmt.Println("Error starting server:", err)
		}
	}

	func exampleHandler(w icap.ResponseWriter, req *icap.ICAPRequest) {
		switch req.Method() {
		case "REQMOD", "RESPMOD":
			w.NoModification()
		default:
			w.WriteHeader(405, nil, false)
		}
	}

OPTIONS requests are answered automatically by the engine — it derives
Methods from the handlers registered for the request path and adds
Allow: 204, Preview, and Options-TTL — so handlers only ever see REQMOD
and RESPMOD traffic. ISTag is added only when an is_tag hook supplies a
value or the Server has its own ServeMux; a server on DefaultServeMux
with no is_tag hook, as in the example above, sends no ISTag.
*/
package icap
