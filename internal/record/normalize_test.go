package record

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Pizza Hut", "pizza hut"},
		{"trim", "  pizza hut  ", "pizza hut"},
		{"collapse internal spaces", "John  Smith ", "john smith"},
		{"tabs and newlines", "123\tMain\nSt", "123 main st"},
		{"strip double quotes", `"Pizza Hut"`, "pizza hut"},
		{"strip single quotes", "'Pizza Hut'", "pizza hut"},
		{"accent folding", "Café Olé", "cafe ole"},
		{"empty", "", ""},
		{"whitespace only", "   \n\t ", ""},
		{"quotes only", `""`, ""},
		{"already clean", "pizza hut", "pizza hut"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Pizza Hut", "  John  Smith ", "Café", `"quoted"`, "plain"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeEquivalentSpellings(t *testing.T) {
	// The pairs the pipeline exists for: cosmetic variants must collapse
	pairs := [][2]string{
		{"john smith", "John  Smith "},
		{"cafe", "Café"},
		{"main st", `"MAIN ST"`},
	}
	for _, p := range pairs {
		a, b := Normalize(p[0]), Normalize(p[1])
		if a != b {
			t.Errorf("Normalize(%q)=%q and Normalize(%q)=%q should be identical", p[0], a, p[1], b)
		}
	}
}
