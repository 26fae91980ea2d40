package dialog

import (
	"regexp"
	"strings"
)

var (
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
	codeRe   = regexp.MustCompile("`(.*?)`")
)

// Sanitize strips markdown formatting the model may emit despite
// instructions. Voice output reads asterisks aloud otherwise.
func Sanitize(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, "$1")
	text = strings.NewReplacer("**", "", "*", "", "`", "").Replace(text)
	return strings.TrimSpace(text)
}
