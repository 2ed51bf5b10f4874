package listen

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Jaro-Winkler score floors. A phonetic-code hit needs the lower bar;
// a pure string-similarity hit needs the higher one.
const (
	phoneticThreshold = 0.70
	fuzzyThreshold    = 0.85
)

// Match is one phrase hit inside a transcript.
type Match struct {
	Type       TriggerType
	Phrase     string
	Heard      string
	Confidence float64
}

// phrase is a precomputed activation phrase. Single-word phrases carry
// Double Metaphone codes for the phonetic fallback; multi-word phrases
// match on substring only.
type phrase struct {
	text      string
	word      bool
	primary   string
	secondary string
}

// Matcher finds start/stop phrases in recognizer transcripts. Substring
// matching catches the phrase inside a longer utterance ("okay go now");
// the phonetic fallback catches recognizer misspellings of single-word
// phrases ("goh" for "go"). Read-only after construction.
type Matcher struct {
	start []phrase
	stop  []phrase
}

// NewMatcher precomputes match data for the given phrase lists.
func NewMatcher(start, stop []string) *Matcher {
	return &Matcher{
		start: compilePhrases(start),
		stop:  compilePhrases(stop),
	}
}

func compilePhrases(texts []string) []phrase {
	phrases := make([]phrase, 0, len(texts))
	for _, t := range texts {
		t = normalize(t)
		if t == "" {
			continue
		}
		p := phrase{text: t, word: !strings.Contains(t, " ")}
		if p.word {
			p.primary, p.secondary = matchr.DoubleMetaphone(t)
		}
		phrases = append(phrases, p)
	}
	return phrases
}

// Match scans a transcript for activation phrases. Stop phrases are checked
// first so "stop" always wins when a transcript somehow contains both.
func (m *Matcher) Match(transcript string) (Match, bool) {
	norm := normalize(transcript)
	if norm == "" {
		return Match{}, false
	}

	if hit, ok := matchIn(m.stop, norm); ok {
		hit.Type = TriggerStop
		return hit, true
	}
	if hit, ok := matchIn(m.start, norm); ok {
		hit.Type = TriggerStart
		return hit, true
	}
	return Match{}, false
}

func matchIn(phrases []phrase, norm string) (Match, bool) {
	words := strings.Fields(norm)

	for _, p := range phrases {
		if containsPhrase(norm, p.text) {
			return Match{Phrase: p.text, Heard: norm, Confidence: 1.0}, true
		}
		if !p.word {
			continue
		}
		for _, w := range words {
			if score, ok := phoneticScore(w, p); ok {
				return Match{Phrase: p.text, Heard: norm, Confidence: score}, true
			}
		}
	}
	return Match{}, false
}

// containsPhrase reports whether the phrase appears on word boundaries.
// A bare Contains would let "cargo" trigger on "go".
func containsPhrase(norm, text string) bool {
	idx := strings.Index(norm, text)
	for idx >= 0 {
		before := idx == 0 || norm[idx-1] == ' '
		end := idx + len(text)
		after := end == len(norm) || norm[end] == ' '
		if before && after {
			return true
		}
		next := strings.Index(norm[idx+1:], text)
		if next < 0 {
			break
		}
		idx += 1 + next
	}
	return false
}

// phoneticScore rates one transcript word against a single-word phrase.
// Matching Double Metaphone codes accept at the phonetic threshold;
// otherwise plain similarity must clear the stricter fuzzy threshold.
func phoneticScore(word string, p phrase) (float64, bool) {
	score := matchr.JaroWinkler(word, p.text, false)

	wp, ws := matchr.DoubleMetaphone(word)
	if codesOverlap(wp, ws, p.primary, p.secondary) {
		if score >= phoneticThreshold {
			return score, true
		}
		return 0, false
	}

	if score >= fuzzyThreshold {
		return score, true
	}
	return 0, false
}

func codesOverlap(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || (bs != "" && a == bs) {
			return true
		}
	}
	return false
}

// normalize lowercases and strips everything but letters, digits,
// apostrophes, and single spaces.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
