package matching

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Hangul preserved", "서울우유", "서울우유"},
		{"Lowercase ASCII", "Seoul Milk", "seoulmilk"},
		{"Strip punctuation", "우유 (1L)", "우유1l"},
		{"Full-width folded", "ｍｉｌｋ５００", "milk500"},
		{"Mixed", "매일우유 900ml!", "매일우유900ml"},
		{"Empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("서울우유 1L 멸균")
	if len(tokens) != 3 {
		t.Fatalf("Tokenize returned %d tokens, want 3: %v", len(tokens), tokens)
	}
	expected := []string{"서울우유", "1l", "멸균"}
	for i, tok := range expected {
		if tokens[i] != tok {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], tok)
		}
	}
}

func TestParseSizeMetric(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValue float64
		wantUnit  string
		wantOK    bool
	}{
		{"Milliliters", "500ml", 500, UnitMl, true},
		{"Liters to ml", "1L", 1000, UnitMl, true},
		{"Liters decimal", "1.5l", 1500, UnitMl, true},
		{"Grams", "200g", 200, UnitGram, true},
		{"Kilograms to g", "2kg", 2000, UnitGram, true},
		{"Milligrams to g", "500mg", 0.5, UnitGram, true},
		{"Korean count 구", "30구", 30, UnitEach, true},
		{"Korean count 개", "10개", 10, UnitEach, true},
		{"Korean count 입", "30개입", 30, UnitEach, true},
		{"Korean liter word", "1리터", 1000, UnitMl, true},
		{"With spacing", "500 ml", 500, UnitMl, true},
		{"Embedded in name", "서울우유 900ml 멸균", 900, UnitMl, true},
		{"No size", "우유", 0, "", false},
		{"Empty", "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metric, ok := ParseSizeMetric(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseSizeMetric(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if metric.Value != tt.wantValue || metric.Unit != tt.wantUnit {
				t.Errorf("ParseSizeMetric(%q) = {%v %s}, want {%v %s}",
					tt.input, metric.Value, metric.Unit, tt.wantValue, tt.wantUnit)
			}
		})
	}
}

func TestSizeDistanceRatio(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		requested string
		expected  float64
	}{
		{"Identical", "500ml", "500ml", 0},
		{"Ten percent off", "550ml", "500ml", 0.1},
		{"Liter vs ml equivalent", "1L", "1000ml", 0},
		{"Count match", "30구", "30개입", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SizeDistanceRatio(tt.candidate, tt.requested)
			if diff := result - tt.expected; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("SizeDistanceRatio(%q, %q) = %v, want %v", tt.candidate, tt.requested, result, tt.expected)
			}
		})
	}
}

func TestSizeDistanceRatioIncomparable(t *testing.T) {
	// Different unit families must never compare as close.
	cases := [][2]string{
		{"500g", "500ml"},
		{"30구", "500ml"},
		{"우유", "500ml"},
		{"500ml", ""},
	}
	for _, c := range cases {
		if r := SizeDistanceRatio(c[0], c[1]); r < 1e6 {
			t.Errorf("SizeDistanceRatio(%q, %q) = %v, want incomparable sentinel", c[0], c[1], r)
		}
	}
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"Identical", "우유", "우유", 1},
		{"Empty left", "", "우유", 0},
		{"Empty right", "우유", "", 0},
		{"Fully distinct", "ab", "cd", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SimilarityRatio(tt.a, tt.b); got != tt.want {
				t.Errorf("SimilarityRatio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	// Partial overlap lands strictly between the extremes.
	partial := SimilarityRatio("서울우유", "서울우유멸균")
	if partial <= 0 || partial >= 1 {
		t.Errorf("partial similarity = %v, want value in (0, 1)", partial)
	}
}
