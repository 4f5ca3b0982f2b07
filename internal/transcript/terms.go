package transcript

import (
	"strings"

	"github.com/auricle-ai/auricle/internal/transcript/phonetic"
)

// defaultTerms is the built-in technical vocabulary the corrector recovers.
// Distinctive multi-syllable terms only; short common words are too easy to
// false-positive on.
var defaultTerms = []string{
	"Dijkstra", "Kubernetes", "PostgreSQL", "Redis", "Kafka",
	"Elasticsearch", "Cassandra", "DynamoDB", "RabbitMQ", "Terraform",
	"GraphQL", "WebSocket", "OAuth", "gRPC", "Nginx",
	"quicksort", "mergesort", "heapsort", "memoization", "recursion",
	"idempotency", "microservices", "serverless", "containerization",
	"sharding", "denormalization", "consistent hashing", "load balancer",
	"binary search tree", "linked list", "hash map", "priority queue",
	"dynamic programming", "breadth first search", "depth first search",
	"garbage collection", "race condition", "circuit breaker",
	"eventual consistency", "message queue",
}

// Correction records one term replacement made by the [Corrector].
type Correction struct {
	// Original is the text window that was replaced.
	Original string

	// Corrected is the canonical term it was replaced with.
	Corrected string

	// Confidence is the Jaro-Winkler score of the match.
	Confidence float64
}

// Corrector recovers technical vocabulary that the speech recognizer
// mangled ("dykstra" for "Dijkstra"). Safe for concurrent use; it is
// read-only after construction.
type Corrector struct {
	matcher *phonetic.Matcher
	vocab   *phonetic.Vocabulary
}

// NewCorrector builds a Corrector over the built-in vocabulary plus
// extraTerms (domain words from the config). Matcher thresholds can be tuned
// via opts.
func NewCorrector(extraTerms []string, opts ...phonetic.Option) *Corrector {
	terms := make([]string, 0, len(defaultTerms)+len(extraTerms))
	terms = append(terms, defaultTerms...)
	terms = append(terms, extraTerms...)
	return &Corrector{
		matcher: phonetic.New(opts...),
		vocab:   phonetic.Prepare(terms),
	}
}

// Correct scans text with n-gram windows up to the longest vocabulary term
// and replaces matched windows with the canonical spelling. Longer windows
// win over shorter ones so multi-word terms take precedence over partial
// single-word matches. Returns the corrected text and the corrections made.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || c.vocab.MaxWords() == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.vocab.MaxWords()
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			bare, suffix := splitTrailingPunct(window)
			term, conf, ok := c.matcher.Match(bare, c.vocab)
			if !ok {
				continue
			}

			if strings.EqualFold(bare, term) {
				// Already the right term; keep the speaker's casing.
				output = append(output, tokens[i:i+n]...)
			} else {
				output = append(output, strings.Fields(term+suffix)...)
				corrections = append(corrections, Correction{
					Original:   bare,
					Corrected:  term,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// splitTrailingPunct separates trailing sentence punctuation from a window
// so "dykstra?" still matches "Dijkstra" and the "?" is reattached after.
func splitTrailingPunct(s string) (bare, suffix string) {
	end := len(s)
	for end > 0 && strings.ContainsRune(".,!?;:", rune(s[end-1])) {
		end--
	}
	return s[:end], s[end:]
}
