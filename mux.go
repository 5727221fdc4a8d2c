package icap

import (
	"fmt"
	"mime"
	"sort"
	"strings"
)

// Criterion expresses which ICAP requests a handler should be invoked
// for: a method set, an ICAP URI path (literal or prefix), an optional
// Content-Type predicate, and/or an optional raw predicate closure.
// A zero-value field means "don't filter on this axis".
type Criterion struct {
	// Methods restricts matches to these ICAP methods. Empty matches any.
	Methods []string
	// Path is matched against the request URI's path.
	Path string
	// PathIsPrefix, if true, matches Path as a prefix rather than an
	// exact literal.
	PathIsPrefix bool
	// ContentType, if non-empty, must equal the encapsulated message's
	// parsed media type (REQMOD checks the request, RESPMOD the
	// response).
	ContentType string
	// Predicate, if non-nil, must also return true. Used for criteria
	// that can't be expressed by the fields above.
	Predicate func(*ICAPRequest) bool
}

// Match reports whether req satisfies every axis of c that was set.
func (c Criterion) Match(req *ICAPRequest) bool {
	if len(c.Methods) > 0 && !containsFold(c.Methods, req.Method()) {
		return false
	}
	if c.Path != "" {
		p := req.RequestLine.URL.Path
		if c.PathIsPrefix {
			if !strings.HasPrefix(p, c.Path) {
				return false
			}
		} else if p != c.Path {
			return false
		}
	}
	if c.ContentType != "" {
		msg := c.contentTypeTarget(req)
		if msg == nil {
			return false
		}
		mt, _ := msg.ContentType()
		want, _, _ := mime.ParseMediaType(c.ContentType)
		if mt != want {
			return false
		}
	}
	if c.Predicate != nil && !c.Predicate(req) {
		return false
	}
	return true
}

func (c Criterion) contentTypeTarget(req *ICAPRequest) HTTPMessage {
	if req.IsRESPMOD() && req.HTTPResp != nil {
		return req.HTTPResp
	}
	if req.HTTPReq != nil {
		return req.HTTPReq
	}
	return nil
}

// specificity ranks c relative to other criteria for matcher ordering:
// longer path prefixes sort before shorter ones, typed (Content-Type)
// predicates sort before untyped ones, and criteria expressed purely as
// a raw Predicate sort last.
func (c Criterion) specificity() int {
	if c.Path == "" && c.ContentType == "" && c.Predicate != nil {
		return -1
	}
	score := len(c.Path)
	if !c.PathIsPrefix && c.Path != "" {
		score += 1 << 16 // exact literal paths outrank any prefix
	}
	if c.ContentType != "" {
		score += 1 << 8
	}
	return score
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// Handler objects implementing the Handler interface can be registered
// to serve ICAP requests.
//
// ServeICAP should write reply headers and data to the ResponseWriter
// and then return.
type Handler interface {
	ServeICAP(ResponseWriter, *ICAPRequest)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as ICAP handlers. If f is a function with the appropriate
// signature, HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(ResponseWriter, *ICAPRequest)

// ServeICAP calls f(w, r).
func (f HandlerFunc) ServeICAP(w ResponseWriter, r *ICAPRequest) { f(w, r) }

type registration struct {
	criterion Criterion
	handler   Handler
}

// ServeMux is an ICAP request multiplexer: it matches each request
// against registered criteria, in order of specificity, and dispatches
// to the first handler whose criterion matches.
type ServeMux struct {
	entries []registration
	sorted  bool
}

// NewServeMux allocates a new ServeMux.
func NewServeMux() *ServeMux { return &ServeMux{} }

// Handle registers handler to be invoked for requests matching
// criterion. Registration order is preserved among equally-specific
// criteria.
func (mux *ServeMux) Handle(criterion Criterion, handler Handler) {
	mux.entries = append(mux.entries, registration{criterion: criterion, handler: handler})
	mux.sorted = false
}

// HandleFunc is the HandlerFunc analogue of Handle.
func (mux *ServeMux) HandleFunc(criterion Criterion, handler func(ResponseWriter, *ICAPRequest)) {
	mux.Handle(criterion, HandlerFunc(handler))
}

// HandlePath registers handler under a literal ICAP path, for any
// method — the common case.
func (mux *ServeMux) HandlePath(path string, handler Handler) {
	mux.Handle(Criterion{Path: path}, handler)
}

// HandleFuncPath is the HandlerFunc analogue of HandlePath.
func (mux *ServeMux) HandleFuncPath(path string, handler func(ResponseWriter, *ICAPRequest)) {
	mux.HandlePath(path, HandlerFunc(handler))
}

// sortHandlers reorders entries so more specific criteria are tried
// first. Match calls it lazily on the first lookup after any
// registration, so registering while transactions are being served is
// not atomic against them (spec 4.4).
func (mux *ServeMux) sortHandlers() {
	sort.SliceStable(mux.entries, func(i, j int) bool {
		return mux.entries[i].criterion.specificity() > mux.entries[j].criterion.specificity()
	})
	mux.sorted = true
}

// Match returns the first registered handler whose criterion matches
// req, or nil if none do.
func (mux *ServeMux) Match(req *ICAPRequest) Handler {
	if !mux.sorted {
		mux.sortHandlers()
	}
	for _, e := range mux.entries {
		if e.criterion.Match(req) {
			return e.handler
		}
	}
	return nil
}

// registeredMethods returns the distinct non-OPTIONS ICAP methods that
// have at least one handler registered for path, for populating the
// OPTIONS response's Methods header.
func (mux *ServeMux) registeredMethods(path string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range mux.entries {
		if e.criterion.Path != "" {
			if e.criterion.PathIsPrefix {
				if !strings.HasPrefix(path, e.criterion.Path) {
					continue
				}
			} else if e.criterion.Path != path {
				continue
			}
		}
		for _, m := range e.criterion.Methods {
			m = strings.ToUpper(m)
			if m == "OPTIONS" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// routesSignature returns a stable string built from the registered
// criteria, suitable as a content hash seed for a default ISTag: it
// changes whenever the route table changes, and is otherwise constant
// across restarts and across requests.
func (mux *ServeMux) routesSignature() string {
	var b strings.Builder
	for _, e := range mux.entries {
		c := e.criterion
		fmt.Fprintf(&b, "%s|%v|%s|%s|", strings.Join(c.Methods, ","), c.PathIsPrefix, c.Path, c.ContentType)
	}
	return b.String()
}

// DefaultServeMux is the default ServeMux used by the package-level
// Handle/HandleFunc registration functions and by ListenAndServe when no
// handler is supplied.
var DefaultServeMux = NewServeMux()

// Handle registers handler on DefaultServeMux for criterion.
func Handle(criterion Criterion, handler Handler) { DefaultServeMux.Handle(criterion, handler) }

// HandleFunc registers a HandlerFunc on DefaultServeMux for criterion.
func HandleFunc(criterion Criterion, handler func(ResponseWriter, *ICAPRequest)) {
	DefaultServeMux.HandleFunc(criterion, handler)
}

// HandlePath registers handler on DefaultServeMux under a literal path,
// for any method.
func HandlePath(path string, handler Handler) { DefaultServeMux.HandlePath(path, handler) }

// HandleFuncPath is the HandlerFunc analogue of HandlePath.
func HandleFuncPath(path string, handler func(ResponseWriter, *ICAPRequest)) {
	DefaultServeMux.HandleFuncPath(path, handler)
}
