package icap

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// headerPair is a single stored (original-case-name, value) pair.
type headerPair struct {
	name  string
	value string
}

// HeadersDict is an ordered, case-insensitive multimap from header field
// name to one or more values, used for both the ICAP envelope headers and
// the encapsulated HTTP preamble headers.
//
// The case of a name is preserved from its first insertion and used for
// serialization; lookups are case-insensitive. Insertion order of distinct
// names is preserved; for repeated names, insertion order of values is
// preserved.
type HeadersDict struct {
	order []string // lowercased keys, in first-insertion order
	pairs map[string][]headerPair
}

// NewHeadersDict returns an empty HeadersDict.
func NewHeadersDict() *HeadersDict {
	return &HeadersDict{pairs: make(map[string][]headerPair)}
}

// Append adds a (name, value) pair, preserving any existing values stored
// under name.
func (h *HeadersDict) Append(name, value string) {
	lkey := strings.ToLower(name)
	if _, ok := h.pairs[lkey]; !ok {
		h.order = append(h.order, lkey)
	}
	h.pairs[lkey] = append(h.pairs[lkey], headerPair{name: name, value: value})
}

// Get returns the first value stored under name, and whether any value
// was present.
func (h *HeadersDict) Get(name string) (string, bool) {
	lkey := strings.ToLower(name)
	vs, ok := h.pairs[lkey]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0].value, true
}

// GetDefault returns the first value stored under name, or def if absent.
func (h *HeadersDict) GetDefault(name, def string) string {
	if v, ok := h.Get(name); ok {
		return v
	}
	return def
}

// GetList returns every value stored under name, in insertion order.
func (h *HeadersDict) GetList(name string) []string {
	vs, ok := h.pairs[strings.ToLower(name)]
	if !ok {
		return nil
	}
	out := make([]string, len(vs))
	for i, p := range vs {
		out[i] = p.value
	}
	return out
}

// Has reports whether any value is stored under name.
func (h *HeadersDict) Has(name string) bool {
	_, ok := h.pairs[strings.ToLower(name)]
	return ok
}

// Replace removes all values under name and stores exactly value.
func (h *HeadersDict) Replace(name, value string) {
	lkey := strings.ToLower(name)
	if _, ok := h.pairs[lkey]; !ok {
		h.order = append(h.order, lkey)
	}
	h.pairs[lkey] = []headerPair{{name: name, value: value}}
}

// Delete removes every value stored under name.
func (h *HeadersDict) Delete(name string) {
	lkey := strings.ToLower(name)
	if _, ok := h.pairs[lkey]; !ok {
		return
	}
	delete(h.pairs, lkey)
	for i, k := range h.order {
		if k == lkey {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Pop returns the first value stored under name and removes every pair
// stored under that name. The second return value is false if name was
// not present.
func (h *HeadersDict) Pop(name string) (string, bool) {
	v, ok := h.Get(name)
	if !ok {
		return "", false
	}
	h.Delete(name)
	return v, true
}

// Names returns the header names in first-insertion order, each in the
// original case it was first inserted with.
func (h *HeadersDict) Names() []string {
	out := make([]string, 0, len(h.order))
	for _, lkey := range h.order {
		if vs := h.pairs[lkey]; len(vs) > 0 {
			out = append(out, vs[0].name)
		}
	}
	return out
}

// Iter calls fn for every (name, value) pair in serialization order.
func (h *HeadersDict) Iter(fn func(name, value string)) {
	for _, lkey := range h.order {
		for _, p := range h.pairs[lkey] {
			fn(p.name, p.value)
		}
	}
}

// Len returns the number of distinct header names stored.
func (h *HeadersDict) Len() int { return len(h.order) }

// Equal reports whether h and o store the same names, in the same order,
// with the same values in the same order for each name. Original case is
// not considered (it is serialization-only metadata).
func (h *HeadersDict) Equal(o *HeadersDict) bool {
	if o == nil || len(h.order) != len(o.order) {
		return false
	}
	for i, lkey := range h.order {
		if o.order[i] != lkey {
			return false
		}
		a, b := h.pairs[lkey], o.pairs[lkey]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j].value != b[j].value {
				return false
			}
		}
	}
	return true
}

// Bytes serializes the headers as "Name: Value\r\n" lines in insertion
// order, one line per stored pair, with no blank-line terminator: the
// caller supplies the preamble-terminating blank line itself. An empty
// header block serializes to the empty byte string.
func (h *HeadersDict) Bytes() []byte {
	if len(h.order) == 0 {
		return nil
	}
	var buf bytes.Buffer
	h.Iter(func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	})
	return buf.Bytes()
}

// ParseHeaders parses a block of "Name: Value\r\n"-terminated lines (no
// terminating blank line expected in block) into a HeadersDict.
func ParseHeaders(block []byte) (*HeadersDict, error) {
	h := NewHeadersDict()
	lines := bytes.Split(block, []byte("\r\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			return nil, errMalformedHeader(line)
		}
		name := strings.TrimSpace(string(line[:idx]))
		value := strings.TrimSpace(string(line[idx+1:]))
		if name == "" {
			return nil, errMalformedHeader(line)
		}
		h.Append(name, value)
	}
	return h, nil
}

func errMalformedHeader(line []byte) error {
	return &malformedHeaderError{line: string(line)}
}

type malformedHeaderError struct{ line string }

func (e *malformedHeaderError) Error() string {
	return "icap: malformed header line " + quote(e.line)
}

func quote(s string) string {
	if utf8.ValidString(s) {
		return `"` + s + `"`
	}
	return `"<invalid utf8>"`
}
