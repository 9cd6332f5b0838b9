package humancount

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int64
	}{
		{"1.2K", 1200},
		{"128.2K", 128200},
		{"33.3K", 33300},
		{"5M", 5000000},
		{"4.7M", 4700000},
		{"0.9B", 900000000},
		{"300", 300},
		{"1,234", 1234},
		{"12.5k", 12500},
		{"7m", 7000000},
		{"-", 0},
		{"--", 0},
		{"", 0},
		{"  ", 0},
		{"abc", 0},
		{"K", 0},
		{"-5", 0},
		{"-1.2K", 0},
		{"1.5", 1},
		{" 42 ", 42},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			if got := Parse(tt.in); got != tt.want {
				t.Fatalf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
