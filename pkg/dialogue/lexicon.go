package dialogue

import (
	"strings"
	"unicode"
)

// Lexicon is a list of candidate phrases.
type Lexicon []string

// Confirm holds the phrases that count as a yes.
var Confirm = Lexicon{
	"Yes", "Okay", "Sure", "I'm willing", "Count me in", "Absolutely no problem",
	"Of course", "Right now", "Let's go", "I'll be there", "Sounds good",
	"I can join", "I'm ready", "It's settled", "Definitely", "On my way", "I'll come",
}

// Reject holds the phrases that count as a no.
var Reject = Lexicon{
	"No", "Not now", "Can't", "Not attending", "Can't make it", "Impossible",
	"Sorry", "I have plans", "Not going", "Unfortunately can't", "I can't do it",
	"Regretfully no", "No way", "No thanks", "I'm busy", "I need to decline",
}

// Match reports whether any phrase of l matches transcript.
func (l Lexicon) Match(transcript string) bool {
	return MatchAny(transcript, l)
}

// words lowercases s and splits it into words. Apostrophes stay inside
// words so contractions compare whole.
func words(s string) []string {
	s = strings.ToLower(strings.ReplaceAll(s, "’", "'"))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// MatchPhrase reports whether every word of phrase appears in transcript in
// order, with any number of other words in between.
func MatchPhrase(transcript, phrase string) bool {
	want := words(phrase)
	if len(want) == 0 {
		return false
	}
	i := 0
	for _, w := range words(transcript) {
		if w == want[i] {
			i++
			if i == len(want) {
				return true
			}
		}
	}
	return false
}

// MatchAny reports whether any of phrases matches transcript.
func MatchAny(transcript string, phrases []string) bool {
	if strings.TrimSpace(transcript) == "" {
		return false
	}
	for _, p := range phrases {
		if MatchPhrase(transcript, p) {
			return true
		}
	}
	return false
}
