package transcript

import (
	"regexp"
	"strings"
)

// questionWords mark a question when one of them opens the text.
var questionWords = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "can": {}, "could": {}, "would": {}, "should": {},
	"is": {}, "are": {}, "do": {}, "does": {},
	"tell": {}, "explain": {}, "describe": {}, "walk": {},
}

// questionStarters are scanned mid-text when extracting the question portion
// of a longer utterance. Order matters: earlier entries win.
var questionStarters = []string{
	"what", "how", "why", "when", "where", "who",
	"which", "can you", "could you", "would you",
	"is there", "are there", "do you", "does",
	"tell me", "explain", "describe",
}

var questionSentenceRe = regexp.MustCompile(`[^.!?]*\?`)

// DetectorOption is a functional option for configuring a [Detector].
type DetectorOption func(*Detector)

// WithMinWords sets the minimum word count below which text is never
// classified as a question. Default: 1.
func WithMinWords(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.minWords = n
		}
	}
}

// WithoutQuestionShape makes Complete accept any terminally-punctuated text,
// not just question-shaped text. Useful for interviewers who phrase prompts
// as statements ("implement a rate limiter.").
func WithoutQuestionShape() DetectorOption {
	return func(d *Detector) {
		d.requireQuestion = false
	}
}

// Detector classifies transcript text as interview questions. Safe for
// concurrent use; it is read-only after construction.
type Detector struct {
	minWords        int
	requireQuestion bool
}

// NewDetector returns a Detector with the supplied options applied.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{minWords: 1, requireQuestion: true}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsQuestion reports whether text looks like a question: it contains a
// question mark, or its first word is an interrogative. Text below the
// minimum word count is never a question.
func (d *Detector) IsQuestion(text string) bool {
	words := strings.Fields(text)
	if len(words) < d.minWords || len(words) == 0 {
		return false
	}
	if strings.Contains(text, "?") {
		return true
	}
	first := strings.Trim(strings.ToLower(words[0]), ".,!?;:")
	_, ok := questionWords[first]
	return ok
}

// Complete reports whether text is ready to be sealed as a question on
// punctuation alone: it ends with terminal punctuation and, unless question
// shape was disabled, looks like a question. The orchestrator's timeout
// trigger covers everything Complete does not.
func (d *Detector) Complete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	if last != '?' && last != '.' && last != '!' {
		return false
	}
	if d.requireQuestion {
		return d.IsQuestion(trimmed)
	}
	return len(strings.Fields(trimmed)) >= d.minWords
}

// Extract returns the question portion of text: the last question-mark
// sentence when one exists, otherwise the suffix starting at the first
// question phrase, otherwise the whole text.
func (d *Detector) Extract(text string) string {
	if qs := questionSentenceRe.FindAllString(text, -1); len(qs) > 0 {
		return strings.TrimSpace(qs[len(qs)-1])
	}

	lower := strings.ToLower(text)
	for _, starter := range questionStarters {
		if idx := strings.Index(lower, starter); idx >= 0 {
			return strings.TrimSpace(text[idx:])
		}
	}
	return strings.TrimSpace(text)
}
