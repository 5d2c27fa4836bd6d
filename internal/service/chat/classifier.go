package chat

import (
	"regexp"
	"strings"
)

// Intent is the branch a user message is routed to
type Intent int

const (
	IntentImage Intent = iota
	IntentText
)

func (i Intent) String() string {
	if i == IntentText {
		return "text"
	}
	return "image"
}

// textIndicators are instructional verbs; everything else is drawn
var textIndicators = []string{
	"explain", "describe", "summarize", "summarise", "summary", "translate",
	"define", "definition", "compare", "analyze", "analyse",
}

var textIndicatorPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(textIndicators, "|") + `)\b`)

// Classify routes a message to the text branch when it contains a text
// indicator word and to the image branch otherwise
func Classify(content string) Intent {
	if textIndicatorPattern.MatchString(content) {
		return IntentText
	}
	return IntentImage
}
