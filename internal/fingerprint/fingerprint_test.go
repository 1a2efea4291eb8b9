package fingerprint

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestComputeDeterministic(t *testing.T) {
	a := Compute("Maison à rénover", dec("150000"), "Lyon", decPtr("85"))
	b := Compute("Maison à rénover", dec("150000"), "Lyon", decPtr("85"))
	if a != b {
		t.Fatalf("same input produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestComputeCrossSourceEquivalence(t *testing.T) {
	// Two sources publishing the same property with cosmetic differences:
	// accents, case, punctuation, and a surface that floors to the same m².
	a := Compute("Maison à rénover", dec("150000"), "Lyon", decPtr("85"))
	b := Compute("maison a renover!!", dec("150000"), "lyon", decPtr("85.9"))
	if a != b {
		t.Fatalf("equivalent listings fingerprinted differently:\n%s\n%s", a, b)
	}
}

func TestComputeDistinguishes(t *testing.T) {
	base := Compute("Appartement T3", dec("220000"), "Paris", decPtr("64"))
	cases := []struct {
		name string
		got  string
	}{
		{"price", Compute("Appartement T3", dec("225000"), "Paris", decPtr("64"))},
		{"city", Compute("Appartement T3", dec("220000"), "Marseille", decPtr("64"))},
		{"title", Compute("Appartement T4", dec("220000"), "Paris", decPtr("64"))},
		{"surface", Compute("Appartement T3", dec("220000"), "Paris", decPtr("66"))},
		{"nil surface", Compute("Appartement T3", dec("220000"), "Paris", nil)},
	}
	for _, tt := range cases {
		if tt.got == base {
			t.Fatalf("%s change did not change the fingerprint", tt.name)
		}
	}
}

func TestComputeFieldBoundaries(t *testing.T) {
	// Content shifted across the title/city boundary must not collide.
	a := Compute("studio lyon", dec("90000"), "", nil)
	b := Compute("studio", dec("90000"), "lyon", nil)
	if a == b {
		t.Fatalf("field boundary collision")
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Maison à rénover", "maisonarenover"},
		{"maison a renover!!", "maisonarenover"},
		{"T3 - 64 m²", "t364m"},
		{"  Loft  ", "loft"},
	}
	for _, tt := range tests {
		if got := normalizeTitle(tt.in); got != tt.want {
			t.Fatalf("normalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lyon", "lyon"},
		{"Saint-Étienne", "saintetienne"},
		{"Paris 11e", "parise"},
	}
	for _, tt := range tests {
		if got := normalizeCity(tt.in); got != tt.want {
			t.Fatalf("normalizeCity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSurfaceFloored(t *testing.T) {
	a := Compute("maison", dec("100000"), "lyon", decPtr("85.0"))
	b := Compute("maison", dec("100000"), "lyon", decPtr("85.9"))
	if a != b {
		t.Fatalf("surface should floor to the same integer")
	}
}
