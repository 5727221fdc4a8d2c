package icap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// checkString is a small testify wrapper shared by the wire-format
// tests, which all compare a raw serialized string against a literal
// expected value.
func checkString(label, got, want string, t *testing.T) {
	assert.Equal(t, want, got, "%s mismatch", label)
}
