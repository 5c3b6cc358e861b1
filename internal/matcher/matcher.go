// Package matcher decides whether a content item satisfies a watch's keyword rules.
//
// Text and keywords are normalised the same way: markdown is reduced to plain
// text, split into runs of letters and digits, lowercased and reduced to their
// English stem. A keyword (one or more words) matches when its stems appear as
// a contiguous run in the text, so "hiring" matches "hire" and "SaaS" matches
// "saas" while "app" never matches "apple".
package matcher

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/sentiment"
)

type Reason string

const (
	ReasonAccepted     Reason = "accepted"
	ReasonContentType  Reason = "content_type"
	ReasonNoInclude    Reason = "no_include_match"
	ReasonExcludeMatch Reason = "exclude_match"
)

type Result struct {
	Accepted bool
	Reason   Reason
	// Matched lists the include keywords found, in watch order.
	Matched []string
	// Excluded is the first exclude keyword found, if any.
	Excluded string
	// Strength is the share of include keywords matched, 1 for an empty include set.
	Strength float64
}

// Match applies the rules of w to item. It has no side effects.
func Match(item models.ContentItem, w models.Watch) Result {
	if !w.Accepts(item.Type) {
		return Result{Reason: ReasonContentType}
	}

	text := Tokens(item.Title + "\n\n" + item.Content)

	for _, kw := range w.ExcludeKeywords {
		if containsPhrase(text, Tokens(kw)) {
			return Result{Reason: ReasonExcludeMatch, Excluded: kw}
		}
	}

	if len(w.Keywords) == 0 {
		return Result{Accepted: true, Reason: ReasonAccepted, Strength: 1}
	}

	var matched []string
	for _, kw := range w.Keywords {
		if containsPhrase(text, Tokens(kw)) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return Result{Reason: ReasonNoInclude}
	}

	return Result{
		Accepted: true,
		Reason:   ReasonAccepted,
		Matched:  matched,
		Strength: float64(len(matched)) / float64(len(w.Keywords)),
	}
}

// Tokens returns the normalised stems of s.
func Tokens(s string) []string {
	plain := sentiment.ConvertMarkdownToText(s)
	words := strings.FieldsFunc(plain, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	stems := make([]string, 0, len(words))
	for _, w := range words {
		stems = append(stems, english.Stem(strings.ToLower(w), true))
	}
	return stems
}

func containsPhrase(text, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(text) {
		return false
	}
	for i := 0; i+len(phrase) <= len(text); i++ {
		hit := true
		for j := range phrase {
			if text[i+j] != phrase[j] {
				hit = false
				break
			}
		}
		if hit {
			return true
		}
	}
	return false
}
