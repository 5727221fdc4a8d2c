package icap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newMuxTestRequest(t *testing.T, uri string) *ICAPRequest {
	rl, err := ParseRequestLine("REQMOD " + uri + " ICAP/1.0")
	assert.NoError(t, err)
	req := NewICAPRequest(rl)
	req.HTTPReq = NewHTTPRequest(nil, nil, nil)
	return req
}

func TestServeMuxPrefersExactPathOverPrefix(t *testing.T) {
	mux := NewServeMux()
	var matched string
	mux.HandleFunc(Criterion{Path: "/a", PathIsPrefix: true}, func(ResponseWriter, *ICAPRequest) { matched = "prefix" })
	mux.HandleFunc(Criterion{Path: "/a/b"}, func(ResponseWriter, *ICAPRequest) { matched = "exact" })

	req := newMuxTestRequest(t, "icap://host/a/b")
	h := mux.Match(req)
	assert.NotNil(t, h)
	h.ServeICAP(nil, req)
	assert.Equal(t, "exact", matched)
}

func TestServeMuxPredicateOnlyCriterionSortsLast(t *testing.T) {
	mux := NewServeMux()
	var matched string
	mux.HandleFunc(Criterion{Predicate: func(*ICAPRequest) bool { return true }}, func(ResponseWriter, *ICAPRequest) { matched = "predicate" })
	mux.HandleFunc(Criterion{Path: "/a", PathIsPrefix: true}, func(ResponseWriter, *ICAPRequest) { matched = "prefix" })

	req := newMuxTestRequest(t, "icap://host/a/b")
	h := mux.Match(req)
	h.ServeICAP(nil, req)
	assert.Equal(t, "prefix", matched, "a predicate-only criterion never outranks a path match")
}

func TestServeMuxContentTypeCriterion(t *testing.T) {
	mux := NewServeMux()
	var matched bool
	mux.HandleFunc(Criterion{ContentType: "text/html"}, func(ResponseWriter, *ICAPRequest) { matched = true })

	req := newMuxTestRequest(t, "icap://host/a")
	req.HTTPReq.Headers().Replace("Content-Type", "text/html; charset=utf-8")

	h := mux.Match(req)
	assert.NotNil(t, h)
	h.ServeICAP(nil, req)
	assert.True(t, matched)
}

func TestServeMuxNoMatchReturnsNil(t *testing.T) {
	mux := NewServeMux()
	mux.HandleFunc(Criterion{Path: "/x"}, func(ResponseWriter, *ICAPRequest) {})

	req := newMuxTestRequest(t, "icap://host/y")
	assert.Nil(t, mux.Match(req))
}

func TestServeMuxRoutesSignatureChangesWithRegistrations(t *testing.T) {
	mux := NewServeMux()
	empty := mux.routesSignature()

	mux.HandleFunc(Criterion{Path: "/a", Methods: []string{"REQMOD"}}, func(ResponseWriter, *ICAPRequest) {})
	withRoute := mux.routesSignature()

	assert.NotEqual(t, empty, withRoute)
	assert.Equal(t, withRoute, mux.routesSignature(), "the signature is stable across repeated calls with no change")
}

func TestServeMuxRegisteredMethods(t *testing.T) {
	mux := NewServeMux()
	mux.HandleFunc(Criterion{Path: "/x", Methods: []string{"REQMOD"}}, func(ResponseWriter, *ICAPRequest) {})
	mux.HandleFunc(Criterion{Path: "/x", Methods: []string{"RESPMOD"}}, func(ResponseWriter, *ICAPRequest) {})

	methods := mux.registeredMethods("/x")
	assert.ElementsMatch(t, []string{"REQMOD", "RESPMOD"}, methods)
}
