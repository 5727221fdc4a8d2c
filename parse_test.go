package icap

import (
	"testing"

	"github.com/icapforge/icap/icaperr"
	"github.com/stretchr/testify/assert"
)

func TestParseEncapsulatedOrdersAndTerminators(t *testing.T) {
	entries, err := parseEncapsulated("req-hdr=0, req-body=154")
	assert.NoError(t, err)
	assert.Equal(t, []encapsulatedEntry{{"req-hdr", 0}, {"req-body", 154}}, entries)

	sl, err := computeSectionLengths(entries)
	assert.NoError(t, err)
	assert.Equal(t, 154, sl.reqHdrLen)
	assert.Equal(t, "req-body", sl.bodyKind)
}

func TestParseEncapsulatedRejectsDecreasingOffsets(t *testing.T) {
	_, err := parseEncapsulated("req-hdr=0, req-body=10, null-body=5")
	assert.Error(t, err)
	assert.Equal(t, 400, icaperr.StatusCode(err))
}

func TestParseEncapsulatedRejectsUnknownKey(t *testing.T) {
	_, err := parseEncapsulated("frob-hdr=0")
	assert.Error(t, err)
}

func TestParseEncapsulatedRejectsNonZeroStart(t *testing.T) {
	entries := []encapsulatedEntry{{"req-hdr", 4}}
	_, err := computeSectionLengths(entries)
	assert.Error(t, err)
}

func TestParseEncapsulatedRejectsBodyNotLast(t *testing.T) {
	entries := []encapsulatedEntry{{"req-body", 0}, {"req-hdr", 10}}
	_, err := computeSectionLengths(entries)
	assert.Error(t, err)
}

func TestParseEncapsulatedRespmodWithOptionalRequest(t *testing.T) {
	entries, err := parseEncapsulated("req-hdr=0, res-hdr=100, res-body=180")
	assert.NoError(t, err)
	sl, err := computeSectionLengths(entries)
	assert.NoError(t, err)
	assert.Equal(t, 100, sl.reqHdrLen)
	assert.Equal(t, 80, sl.resHdrLen)
	assert.Equal(t, "res-body", sl.bodyKind)
}
