package application

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses bounds the strip/decode loop. Each pass removes at least
// one layer of entity encoding, so real input stabilizes after two or three.
const maxSanitizePasses = 4

// markupPattern matches the start of a tag, comment or directive. A bare "<"
// followed by a space or digit is ordinary text.
var markupPattern = regexp.MustCompile(`<[a-zA-Z/!?]`)

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Sanitizer reduces user input to plain text. No tag or attribute survives;
// script and style elements are dropped together with their content.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a Sanitizer using bluemonday's strict policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize trims text, strips all markup and returns entity-decoded plain text.
// Stripping and decoding are repeated until the output is stable, so markup
// hidden behind entity encoding (&lt;script&gt;) is removed as well. When the
// input contained markup at any stage, every remaining angle bracket is
// dropped too, so broken or nested tags leave no fragments behind.
func (s *Sanitizer) Sanitize(text string) string {
	out := strings.TrimSpace(text)
	if out == "" {
		return out
	}

	sawMarkup := markupPattern.MatchString(out)
	for range maxSanitizePasses {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(out)))
		if next == out {
			break
		}
		out = next
		sawMarkup = sawMarkup || markupPattern.MatchString(out)
	}

	if sawMarkup {
		out = strings.TrimSpace(angleBrackets.Replace(out))
	}
	return out
}
