// Package mediatype decides whether a request or response body crosses the
// Lambda boundary base64 encoded, based on an API's binary media types.
package mediatype

import (
	"mime"
	"sort"
	"strconv"
	"strings"
)

// Wildcard in the binary media types makes every body binary.
const Wildcard = "*/*"

// IsBinary reports whether a request with the given Content-Type carries a
// binary body.
func IsBinary(binaryTypes []string, contentType string) bool {
	if contains(binaryTypes, Wildcard) {
		return true
	}
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	for _, t := range binaryTypes {
		if matches(strings.ToLower(t), mt) {
			return true
		}
	}
	return false
}

// Negotiate returns the binary media type that best satisfies an Accept
// header. A "*/*" binary type matches any Accept header, including none.
func Negotiate(binaryTypes []string, accept string) (string, bool) {
	if contains(binaryTypes, Wildcard) {
		return Wildcard, true
	}
	ranges := parseAccept(accept)
	best, bestQ, bestSpecificity := "", 0.0, -1
	for _, t := range binaryTypes {
		lower := strings.ToLower(t)
		for _, r := range ranges {
			if r.q <= 0 || !matches(r.mediaType, lower) {
				continue
			}
			if r.q > bestQ || (r.q == bestQ && r.specificity > bestSpecificity) {
				best, bestQ, bestSpecificity = t, r.q, r.specificity
			}
		}
	}
	return best, best != ""
}

type mediaRange struct {
	mediaType   string
	q           float64
	specificity int
}

func parseAccept(accept string) []mediaRange {
	var out []mediaRange
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mt, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		out = append(out, mediaRange{mediaType: mt, q: q, specificity: specificity(mt)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].q > out[j].q })
	return out
}

func specificity(mt string) int {
	switch {
	case mt == Wildcard:
		return 0
	case strings.HasSuffix(mt, "/*"):
		return 1
	}
	return 2
}

// matches compares two media types; "*" on either side matches any value.
func matches(a, b string) bool {
	aType, aSub, _ := strings.Cut(a, "/")
	bType, bSub, _ := strings.Cut(b, "/")
	if aType != "*" && bType != "*" && aType != bType {
		return false
	}
	return aSub == "*" || bSub == "*" || aSub == bSub
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
