package icap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestICAPRequest(t *testing.T) *ICAPRequest {
	rl, err := ParseRequestLine("REQMOD icap://icap-server.net/modify ICAP/1.0")
	assert.NoError(t, err)
	return NewICAPRequest(rl)
}

func TestAllowsNoContentViaAllowHeader(t *testing.T) {
	req := newTestICAPRequest(t)
	req.Headers.Replace("Allow", "204, foo")
	assert.True(t, req.AllowsNoContent())
}

func TestAllowsNoContentRejectsLookalikeToken(t *testing.T) {
	req := newTestICAPRequest(t)
	req.Headers.Replace("Allow", "2040")
	assert.False(t, req.AllowsNoContent())
}

func TestAllowsNoContentViaPreview(t *testing.T) {
	req := newTestICAPRequest(t)
	req.Preview = 0
	assert.True(t, req.AllowsNoContent())
}

func TestAllowsNoContentFalseByDefault(t *testing.T) {
	req := newTestICAPRequest(t)
	assert.False(t, req.AllowsNoContent())
}

func TestHasBodyFalseForNullBody(t *testing.T) {
	req := newTestICAPRequest(t)
	req.Headers.Replace("Encapsulated", "req-hdr=0, null-body=50")
	assert.False(t, req.HasBody())
}

func TestHasBodyTrueForBodyEntry(t *testing.T) {
	req := newTestICAPRequest(t)
	req.Headers.Replace("Encapsulated", "req-hdr=0, req-body=50")
	assert.True(t, req.HasBody())
}

func TestHasBodyFalseForOptionsWithoutEncapsulated(t *testing.T) {
	rl, err := ParseRequestLine("OPTIONS icap://icap-server.net/modify ICAP/1.0")
	assert.NoError(t, err)
	req := NewICAPRequest(rl)
	assert.False(t, req.HasBody())
}
