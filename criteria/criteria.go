// Package criteria provides readable constructors for icap.Criterion
// values: small composable predicates instead of a string-routing table.
package criteria

import "github.com/icapforge/icap"

// Method restricts a criterion to the given ICAP methods.
func Method(methods ...string) icap.Criterion {
	return icap.Criterion{Methods: methods}
}

// Path matches requests whose ICAP URI path equals path exactly.
func Path(path string) icap.Criterion {
	return icap.Criterion{Path: path}
}

// PathPrefix matches requests whose ICAP URI path starts with prefix.
func PathPrefix(prefix string) icap.Criterion {
	return icap.Criterion{Path: prefix, PathIsPrefix: true}
}

// ContentType matches requests whose encapsulated HTTP message (the
// response body for RESPMOD, the request body for REQMOD) has this
// media type.
func ContentType(mediaType string) icap.Criterion {
	return icap.Criterion{ContentType: mediaType}
}

// Predicate wraps an arbitrary predicate as a Criterion.
func Predicate(fn func(*icap.ICAPRequest) bool) icap.Criterion {
	return icap.Criterion{Predicate: fn}
}

// All combines criteria with AND semantics: the result matches only if
// every one of cs matches.
func All(cs ...icap.Criterion) icap.Criterion {
	return icap.Criterion{Predicate: func(req *icap.ICAPRequest) bool {
		for _, c := range cs {
			if !c.Match(req) {
				return false
			}
		}
		return true
	}}
}

// Any combines criteria with OR semantics: the result matches if at
// least one of cs matches.
func Any(cs ...icap.Criterion) icap.Criterion {
	return icap.Criterion{Predicate: func(req *icap.ICAPRequest) bool {
		for _, c := range cs {
			if c.Match(req) {
				return true
			}
		}
		return false
	}}
}
