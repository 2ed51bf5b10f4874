package listen

import "testing"

func TestMatcherSubstring(t *testing.T) {
	m := NewMatcher([]string{"go", "let's go"}, []string{"stop", "wait"})

	tests := []struct {
		name       string
		transcript string
		wantType   TriggerType
		wantPhrase string
		wantMatch  bool
	}{
		{"exact start word", "go", TriggerStart, "go", true},
		{"exact start phrase", "let's go", TriggerStart, "let's go", true},
		{"phrase inside sentence", "okay let's go now", TriggerStart, "let's go", true},
		{"case insensitive", "GO", TriggerStart, "go", true},
		{"punctuation stripped", "Go!", TriggerStart, "go", true},
		{"exact stop", "stop", TriggerStop, "stop", true},
		{"stop inside sentence", "please stop now", TriggerStop, "stop", true},
		{"stop wins over start", "go and then stop", TriggerStop, "stop", true},
		{"embedded word does not fire", "the cargo is heavy", "", "", false},
		{"unrelated speech", "nice weather today", "", "", false},
		{"empty transcript", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := m.Match(tt.transcript)
			if ok != tt.wantMatch {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.transcript, ok, tt.wantMatch)
			}
			if !ok {
				return
			}
			if hit.Type != tt.wantType {
				t.Errorf("type = %q, want %q", hit.Type, tt.wantType)
			}
			if hit.Phrase != tt.wantPhrase {
				t.Errorf("phrase = %q, want %q", hit.Phrase, tt.wantPhrase)
			}
			if hit.Confidence != 1.0 {
				t.Errorf("confidence = %v, want 1.0 for substring match", hit.Confidence)
			}
		})
	}
}

func TestMatcherPhonetic(t *testing.T) {
	m := NewMatcher([]string{"go"}, []string{"stop"})

	t.Run("recognizer misspelling still matches", func(t *testing.T) {
		hit, ok := m.Match("goh")
		if !ok {
			t.Fatal("expected phonetic match for \"goh\"")
		}
		if hit.Type != TriggerStart || hit.Phrase != "go" {
			t.Errorf("hit = %+v", hit)
		}
		if hit.Confidence >= 1.0 || hit.Confidence < phoneticThreshold {
			t.Errorf("confidence = %v, want within [%v, 1.0)", hit.Confidence, phoneticThreshold)
		}
	})

	t.Run("dissimilar word does not match", func(t *testing.T) {
		if _, ok := m.Match("no"); ok {
			t.Error("\"no\" matched \"go\"")
		}
	})

	t.Run("multi word phrases skip the fallback", func(t *testing.T) {
		mm := NewMatcher([]string{"let's go"}, nil)
		if _, ok := mm.Match("lets goh"); ok {
			t.Error("phonetic fallback applied to a multi-word phrase")
		}
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello world"},
		{"  Let's   GO  ", "let's go"},
		{"...", ""},
		{"stop.", "stop"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
