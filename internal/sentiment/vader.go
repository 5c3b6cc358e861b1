package sentiment

import (
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

var (
	analyzer    = govader.NewSentimentIntensityAnalyzer()
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
)

const (
	PainThreshold     = -0.20
	PositiveThreshold = 0.20
)

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1")
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders reddit markdown and strips the markup, links and
// redundant whitespace, leaving the words a reader would see.
func ConvertMarkdownToText(input string) string {
	input = RemoveLinks(input)
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plain := tagPattern.ReplaceAllString(string(output), " ")
	plain = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(plain)
	return strings.Join(strings.Fields(plain), " ")
}

// RenderHTML turns a markdown draft into HTML for notification payloads.
func RenderHTML(markdown string) string {
	return string(blackfriday.Run([]byte(markdown)))
}

// Compound returns the VADER compound polarity of the text in [-1, 1].
func Compound(text string) float64 {
	return analyzer.PolarityScores(ConvertMarkdownToText(text)).Compound
}

func Label(score float64) string {
	switch {
	case score >= PositiveThreshold:
		return "positive"
	case score <= PainThreshold:
		return "negative"
	default:
		return "neutral"
	}
}
