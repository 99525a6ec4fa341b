package validation

import "testing"

func TestIsValidAmount(t *testing.T) {
	valid := []string{"0", "10", "10.5", "10.50", " 25.00 "}
	for _, s := range valid {
		if !IsValidAmount(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []string{"", "-5", "10.", "1.234", "1,50", "abc", "1.2.3"}
	for _, s := range invalid {
		if IsValidAmount(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidCurrency(t *testing.T) {
	if !IsValidCurrency("USD") || !IsValidCurrency("MYR") {
		t.Error("expected USD/MYR to be valid")
	}
	for _, s := range []string{"usd", "US", "USDT", ""} {
		if IsValidCurrency(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidID(t *testing.T) {
	if !IsValidID("wd_0123456789abcdef01234567") {
		t.Error("expected prefixed hex ID to be valid")
	}
	for _, s := range []string{"", "wd_", "wd_XYZ", "0123456789abcdef01234567"} {
		if IsValidID(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("SanitizeString truncation = %q", got)
	}
}
