package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer   = bluemonday.UGCPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// PlainText strips all markup from user supplied free text such as names, bank details and
// references, trims it and caps it at maxRunes.
func PlainText(input string, maxRunes int) string {
	s := strings.TrimSpace(plainPolicy.Sanitize(input))
	if maxRunes > 0 {
		if rs := []rune(s); len(rs) > maxRunes {
			s = string(rs[:maxRunes])
		}
	}
	return s
}
