/*
File Name:  Sanitize.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package sanitize

import (
	"strings"
	"unicode/utf8"
)

// Username sanitizes a nickname before it is signed into a
// NoiseIdentityAnnouncement (surrounding whitespace must be trimmed before
// signing, §4.4).
func Username(input string) string {
	if !utf8.ValidString(input) {
		return "<invalid encoding>"
	}

	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\n", " ")
	input = strings.ReplaceAll(input, "\r", "")

	// Max length for sanitized version is 36, resembling the limit from StackOverflow.
	if len(input) > 36 {
		input = input[:36]
	}

	return input
}
