package icap

import (
	"strings"

	"github.com/icapforge/icap/icaperr"
	"golang.org/x/text/encoding/charmap"
)

// decodeCharset decodes b using the named charset. us-ascii and utf-8 are
// treated as already being valid UTF-8 bytes (the common case on the
// wire); iso-8859-1/latin1 is decoded via golang.org/x/text.
func decodeCharset(b []byte, charset string) (string, error) {
	switch normalizeCharset(charset) {
	case "utf-8", "us-ascii", "ascii", "":
		return string(b), nil
	case "iso-8859-1", "latin1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			return "", icaperr.Wrap(500, err)
		}
		return string(out), nil
	default:
		return "", icaperr.Errorf(500, "icap: unsupported charset %q", charset)
	}
}

// encodeCharset encodes s into the named charset.
func encodeCharset(s string, charset string) ([]byte, error) {
	switch normalizeCharset(charset) {
	case "utf-8", "us-ascii", "ascii", "":
		return []byte(s), nil
	case "iso-8859-1", "latin1":
		out, err := charmap.ISO8859_1.NewEncoder().String(s)
		if err != nil {
			return nil, icaperr.Wrap(500, err)
		}
		return []byte(out), nil
	default:
		return nil, icaperr.Errorf(500, "icap: unsupported charset %q", charset)
	}
}

func normalizeCharset(charset string) string {
	return strings.ToLower(strings.TrimSpace(charset))
}
