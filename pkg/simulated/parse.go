package simulated

import (
	"regexp"
	"strings"
)

// Assistant replies follow the "spoken text (translation)" convention.
// Both ASCII and fullwidth parentheses occur depending on the reply
// language.
var annotationRe = regexp.MustCompile(`(?s)^(.*)\s*[(（](.*)[)）]$`)

// SplitAnnotation separates the spoken portion from a trailing
// parenthesised translation. Without a trailing group the whole reply is
// spoken and the annotation is empty.
func SplitAnnotation(reply string) (spoken, annotation string) {
	reply = strings.TrimSpace(reply)
	m := annotationRe.FindStringSubmatch(reply)
	if m == nil {
		return reply, ""
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
}
