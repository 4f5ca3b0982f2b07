package phonetic_test

import (
	"testing"

	"github.com/auricle-ai/auricle/internal/transcript/phonetic"
)

func TestMatch_ExactTerm(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	v := phonetic.Prepare([]string{"Kubernetes", "Redis"})

	corrected, conf, ok := m.Match("kubernetes", v)
	if !ok {
		t.Fatal("exact term did not match")
	}
	if corrected != "Kubernetes" {
		t.Errorf("corrected = %q, want canonical spelling", corrected)
	}
	if conf != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for identical strings", conf)
	}
}

func TestMatch_Misspelling(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	v := phonetic.Prepare([]string{"postgres", "Kafka"})

	corrected, conf, ok := m.Match("postgress", v)
	if !ok {
		t.Fatal("near-identical misspelling did not match")
	}
	if corrected != "postgres" {
		t.Errorf("corrected = %q, want %q", corrected, "postgres")
	}
	if conf <= 0.9 {
		t.Errorf("confidence = %v, want > 0.9", conf)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	v := phonetic.Prepare([]string{"Kubernetes", "Redis"})

	corrected, conf, ok := m.Match("banana", v)
	if ok {
		t.Fatalf("unrelated word matched %q", corrected)
	}
	if corrected != "banana" || conf != 0 {
		t.Errorf("miss must return input unchanged: got %q, %v", corrected, conf)
	}
}

func TestMatch_MultiWordTerm(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	v := phonetic.Prepare([]string{"binary search tree"})

	corrected, _, ok := m.Match("binary search tree", v)
	if !ok || corrected != "binary search tree" {
		t.Fatalf("multi-word term: got %q, matched=%v", corrected, ok)
	}
}

func TestMatch_ThresholdRejects(t *testing.T) {
	t.Parallel()

	m := phonetic.New(phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	v := phonetic.Prepare([]string{"postgres"})

	if _, _, ok := m.Match("postgress", v); ok {
		t.Error("match accepted below the raised threshold")
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()

	if _, _, ok := m.Match("  ", phonetic.Prepare([]string{"Redis"})); ok {
		t.Error("blank input matched")
	}
	if _, _, ok := m.Match("redis", phonetic.Prepare(nil)); ok {
		t.Error("empty vocabulary matched")
	}
	if _, _, ok := m.Match("redis", nil); ok {
		t.Error("nil vocabulary matched")
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	v := phonetic.Prepare([]string{"Dijkstra", "  ", "binary search tree", ""})
	if v.Len() != 2 {
		t.Errorf("Len = %d, want 2 (blanks dropped)", v.Len())
	}
	if v.MaxWords() != 3 {
		t.Errorf("MaxWords = %d, want 3", v.MaxWords())
	}
}
