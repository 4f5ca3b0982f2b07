// Package transcript post-processes raw speech-to-text output before it
// reaches the session orchestrator: whitespace and punctuation cleanup,
// colloquial contraction fixes, optional filler-word removal, phonetic
// recovery of technical vocabulary, and question detection.
package transcript

import (
	"regexp"
	"strings"
)

// fillerWords are dropped when filler removal is enabled. Multi-word entries
// are matched as phrases.
var fillerWords = []string{
	"um", "uh", "er", "ah", "like", "you know",
	"basically", "actually", "literally", "so", "well",
}

// contractions maps colloquial forms to their expansions.
var contractions = map[string]string{
	"gonna": "going to",
	"wanna": "want to",
	"gotta": "got to",
	"kinda": "kind of",
	"sorta": "sort of",
	"dunno": "don't know",
	"lemme": "let me",
	"gimme": "give me",
}

var (
	multiSpaceRe   = regexp.MustCompile(`\s+`)
	spaceBeforeRe  = regexp.MustCompile(`\s+([.,!?;:])`)
	missingSpaceRe = regexp.MustCompile(`([.,!?;:])([A-Za-z])`)
	sentenceEndRe  = regexp.MustCompile(`([.!?]+\s*)`)
)

// NormalizerOption is a functional option for configuring a [Normalizer].
type NormalizerOption func(*Normalizer)

// WithFillerRemoval enables dropping filler words ("um", "you know", ...).
// Off by default: fillers occasionally carry meaning in behavioral answers.
func WithFillerRemoval() NormalizerOption {
	return func(n *Normalizer) {
		n.removeFillers = true
	}
}

// WithoutContractionFixes disables expanding colloquial contractions such as
// "gonna" to "going to". Enabled by default.
func WithoutContractionFixes() NormalizerOption {
	return func(n *Normalizer) {
		n.expandContractions = false
	}
}

// WithoutSentenceCase disables capitalizing the first letter of each
// sentence. Enabled by default.
func WithoutSentenceCase() NormalizerOption {
	return func(n *Normalizer) {
		n.sentenceCase = false
	}
}

// Normalizer cleans up raw transcription text. Safe for concurrent use; it
// is read-only after construction.
type Normalizer struct {
	removeFillers      bool
	expandContractions bool
	sentenceCase       bool

	contractionRes map[*regexp.Regexp]string
}

// NewNormalizer returns a Normalizer with the supplied options applied.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		expandContractions: true,
		sentenceCase:       true,
	}
	for _, o := range opts {
		o(n)
	}

	n.contractionRes = make(map[*regexp.Regexp]string, len(contractions))
	for from, to := range contractions {
		n.contractionRes[regexp.MustCompile(`(?i)\b`+from+`\b`)] = to
	}
	return n
}

// Normalize cleans up text and returns the result. Empty input passes
// through unchanged.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	text = cleanWhitespace(text)
	if n.removeFillers {
		text = removeFillerWords(text)
	}
	if n.expandContractions {
		for re, to := range n.contractionRes {
			text = re.ReplaceAllString(text, to)
		}
	}
	if n.sentenceCase {
		text = capitalizeSentences(text)
	}
	return strings.TrimSpace(text)
}

func cleanWhitespace(text string) string {
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = spaceBeforeRe.ReplaceAllString(text, "$1")
	text = missingSpaceRe.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}

// removeFillerWords drops filler words and phrases, comparing with
// punctuation stripped so "um," still counts as a filler.
func removeFillerWords(text string) string {
	words := strings.Fields(text)
	bare := make([]string, len(words))
	for i, w := range words {
		bare[i] = strings.Trim(strings.ToLower(w), ".,!?;:")
	}

	var kept []string
	for i := 0; i < len(words); i++ {
		skip := 0
		for _, filler := range fillerWords {
			parts := strings.Fields(filler)
			if i+len(parts) > len(words) {
				continue
			}
			if strings.Join(bare[i:i+len(parts)], " ") == filler {
				skip = len(parts)
				break
			}
		}
		if skip > 0 {
			i += skip - 1
			continue
		}
		kept = append(kept, words[i])
	}
	return strings.Join(kept, " ")
}

func capitalizeSentences(text string) string {
	parts := sentenceEndRe.Split(text, -1)
	seps := sentenceEndRe.FindAllString(text, -1)

	var b strings.Builder
	for i, part := range parts {
		if part != "" {
			b.WriteString(strings.ToUpper(part[:1]) + part[1:])
		}
		if i < len(seps) {
			b.WriteString(seps[i])
		}
	}
	return b.String()
}
