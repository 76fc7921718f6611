package youtube

import "testing"

func TestParseISODurationSeconds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *float64
	}{
		{name: "seconds only", input: "PT45S", want: float64Ptr(45)},
		{name: "minutes and seconds", input: "PT1M30S", want: float64Ptr(90)},
		{name: "hours minutes seconds", input: "PT1H2M3S", want: float64Ptr(3723)},
		{name: "fractional seconds", input: "PT59.5S", want: float64Ptr(59.5)},
		{name: "fractional rounded to 2dp", input: "PT3.141S", want: float64Ptr(3.14)},
		{name: "lowercase accepted", input: "pt1m", want: float64Ptr(60)},
		{name: "bare PT is zero", input: "PT", want: float64Ptr(0)},
		{name: "empty string", input: "", want: nil},
		{name: "garbage", input: "1m30s", want: nil},
		{name: "date components rejected", input: "P1DT1M", want: nil},
		{name: "trailing text rejected", input: "PT1M30Sx", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseISODurationSeconds(tt.input)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseISODurationSeconds(%q) = %v, want %v", tt.input, fmtPtr(got), fmtPtr(tt.want))
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ParseISODurationSeconds(%q) = %v, want %v", tt.input, *got, *tt.want)
			}
		})
	}
}

func fmtPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
