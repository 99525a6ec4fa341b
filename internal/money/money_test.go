package money

import (
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"10", 1000, true},
		{"10.5", 1050, true},
		{"10.50", 1050, true},
		{"10.509", 1050, true}, // truncated, not rounded
		{"0.01", 1, true},
		{" 25.00 ", 2500, true},
		{"-5", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.Cmp(big.NewInt(tt.cents)) != 0 {
			t.Errorf("Parse(%q) = %s, want %d", tt.in, got, tt.cents)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{1050, "10.50"},
		{100000, "1000.00"},
		{-250, "-2.50"},
	}

	for _, tt := range tests {
		if got := Format(big.NewInt(tt.cents)); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}

	if got := Format(nil); got != "0.00" {
		t.Errorf("Format(nil) = %q, want 0.00", got)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "10.50", "999999.99", "0.01"} {
		v, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if got := Format(v); got != s {
			t.Errorf("round trip %q = %q", s, got)
		}
	}
}

func TestArithmetic(t *testing.T) {
	if got := Add("10.00", "2.50"); got != "12.50" {
		t.Errorf("Add = %q", got)
	}
	if got := Sub("10.00", "2.50"); got != "7.50" {
		t.Errorf("Sub = %q", got)
	}
	if got := Sub("2.50", "10.00"); got != "-7.50" {
		t.Errorf("Sub negative = %q", got)
	}
	if Cmp("10.00", "10") != 0 {
		t.Error("Cmp equal amounts should be 0")
	}
	if Cmp("9.99", "10.00") >= 0 {
		t.Error("Cmp 9.99 < 10.00")
	}
	if !IsPositive("0.01") || IsPositive("0") || IsPositive("-1") {
		t.Error("IsPositive misclassified")
	}
}
