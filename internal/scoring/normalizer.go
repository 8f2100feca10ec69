package scoring

import "strings"

// Normalize collapses every whitespace run (Unicode aware) into one space
// and trims both ends. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
