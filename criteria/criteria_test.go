package criteria

import (
	"testing"

	"github.com/icapforge/icap"
	"github.com/stretchr/testify/assert"
)

func newReq(t *testing.T, uri string) *icap.ICAPRequest {
	rl, err := icap.ParseRequestLine("REQMOD " + uri + " ICAP/1.0")
	assert.NoError(t, err)
	return icap.NewICAPRequest(rl)
}

func TestAllRequiresEveryCriterion(t *testing.T) {
	c := All(Method("REQMOD"), Path("/a"))
	req := newReq(t, "icap://host/a")
	assert.True(t, c.Match(req))

	other := newReq(t, "icap://host/b")
	assert.False(t, c.Match(other))
}

func TestAnyRequiresOneCriterion(t *testing.T) {
	c := Any(Path("/a"), Path("/b"))
	assert.True(t, c.Match(newReq(t, "icap://host/b")))
	assert.False(t, c.Match(newReq(t, "icap://host/c")))
}

func TestPathPrefixMatchesPrefixOnly(t *testing.T) {
	c := PathPrefix("/scan")
	assert.True(t, c.Match(newReq(t, "icap://host/scan/sub")))
	assert.False(t, c.Match(newReq(t, "icap://host/other")))
}
