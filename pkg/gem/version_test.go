package gem

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "1.2.0", false},
		{"single segment", "7", false},
		{"prerelease", "3.0.0.beta1", false},
		{"prerelease with dot", "1.0.0.pre.2", false},
		{"surrounding whitespace", "  2.1.4  ", false},
		{"empty means zero", "", false},
		{"leading dot", ".1", true},
		{"trailing dot", "1.", true},
		{"letters first", "beta.1", true},
		{"garbage", "1.2 three", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformed) {
				t.Errorf("ParseVersion(%q) error should wrap ErrMalformed, got %v", tt.input, err)
			}
		})
	}
}

func TestVersionEmptyIsZero(t *testing.T) {
	v := MustVersion("")
	if v.String() != "0" {
		t.Errorf("String() = %q, want \"0\"", v.String())
	}
	if v.Compare(MustVersion("0.0.0")) != 0 {
		t.Error("empty version should equal 0.0.0")
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1", "1.0.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0", "1.0.1", -1},
		{"2.0", "1.9.9", 1},
		{"0.9", "1.0", -1},
		{"1.0.10", "1.0.9", 1},
		// Prereleases sort before the release they precede.
		{"1.0.0.pre", "1.0.0", -1},
		{"1.0.0", "1.0.0.pre", 1},
		{"1.0.0.alpha", "1.0.0.beta", -1},
		{"1.0.0.beta1", "1.0.0.beta2", -1},
		{"3.0.0.rc1", "3.0.0", -1},
		{"1.0.a", "1.0.a", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			got := MustVersion(tt.a).Compare(MustVersion(tt.b))
			if got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVersionPrerelease(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1.0.0", false},
		{"1.0.0.pre", true},
		{"3.0.0.beta1", true},
		{"2.1", false},
	}

	for _, tt := range tests {
		if got := MustVersion(tt.input).Prerelease(); got != tt.want {
			t.Errorf("Prerelease(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestVersionBump(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.2.3", "1.3"},
		{"1.2", "2"},
		{"5", "6"},
		{"1.0.a", "2"},
		{"2.3.0.beta1", "2.4"},
	}

	for _, tt := range tests {
		if got := MustVersion(tt.input).bump().String(); got != tt.want {
			t.Errorf("bump(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
