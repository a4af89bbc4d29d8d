package archive

import (
	"strings"
	"unicode"
)

// Sanitize builds the filename stem for an item from "<id> <title>",
// keeping letters, digits and spaces and trimming trailing spaces.
func Sanitize(itemID, title string) string {
	var b strings.Builder
	for _, r := range itemID + " " + title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
