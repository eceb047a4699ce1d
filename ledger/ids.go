package ledger

import (
	"fmt"
	"strings"
	"unicode"
)

// ReferralCode builds a shareable code from the first four letters of name and four random
// digits, e.g. "PRIY4821".
func ReferralCode(name string, r RandSource) string {
	var b strings.Builder
	for _, c := range name {
		if b.Len() == 4 {
			break
		}
		if c < unicode.MaxASCII && unicode.IsLetter(c) {
			b.WriteRune(unicode.ToUpper(c))
		}
	}
	for b.Len() < 4 {
		b.WriteByte('X')
	}
	return fmt.Sprintf("%s%04d", b.String(), between(r, 1000, 9999))
}
