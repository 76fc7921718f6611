package youtube

import (
	"math"
	"testing"
)

func TestToNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  *float64
	}{
		{name: "float", input: 4.2, want: float64Ptr(4.2)},
		{name: "numeric string", input: "3.14", want: float64Ptr(3.14)},
		{name: "padded numeric string", input: "  12 ", want: float64Ptr(12)},
		{name: "empty string", input: "", want: nil},
		{name: "non-numeric string", input: "n/a", want: nil},
		{name: "nil", input: nil, want: nil},
		{name: "bool", input: true, want: nil},
		{name: "NaN", input: math.NaN(), want: nil},
		{name: "Inf", input: math.Inf(1), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toNumber(tt.input)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("toNumber(%v) = %v, want %v", tt.input, fmtPtr(got), fmtPtr(tt.want))
			}
			if got != nil && *got != *tt.want {
				t.Errorf("toNumber(%v) = %v, want %v", tt.input, *got, *tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	if got := round2(nil); got != nil {
		t.Errorf("round2(nil) = %v, want nil", *got)
	}
	if got := round2(float64Ptr(3.456)); *got != 3.46 {
		t.Errorf("round2(3.456) = %v, want 3.46", *got)
	}
	if got := round2(float64Ptr(2.005)); *got != math.Round(2.005*100)/100 {
		t.Errorf("round2(2.005) = %v", *got)
	}
}
