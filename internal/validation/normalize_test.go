package validation

import "testing"

func TestNormalizeMobile(t *testing.T) {
	tests := []struct {
		name   string
		mobile string
		want   string
	}{
		{name: "national format", mobile: "07700 900123", want: "07700900123"},
		{name: "international format", mobile: "+44 7700 900123", want: "07700900123"},
		{name: "dashed country code", mobile: "44-7700-900123", want: "07700900123"},
		{name: "missing leading zero", mobile: "7700900123", want: "07700900123"},
		{name: "no digits", mobile: "n/a", want: ""},
		{name: "empty", mobile: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMobile(tt.mobile); got != tt.want {
				t.Fatalf("NormalizeMobile(%q) = %q, want %q", tt.mobile, got, tt.want)
			}
		})
	}
}

func TestNormalizeMobileEquivalence(t *testing.T) {
	a := NormalizeMobile("+44 7700 900123")
	b := NormalizeMobile("07700900123")
	if a != b {
		t.Fatalf("expected equal normal forms, got %q and %q", a, b)
	}
}

func TestIsValidMembershipNumber(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"123456", true},
		{"0", true},
		{"", false},
		{"12a45", false},
		{"12 45", false},
	}

	for _, tt := range tests {
		if got := IsValidMembershipNumber(tt.number); got != tt.want {
			t.Fatalf("IsValidMembershipNumber(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"walker@example.com", true},
		{"", false},
		{"not-an-email", false},
		{"Name <walker@example.com>", false},
	}

	for _, tt := range tests {
		if got := IsValidEmail(tt.email); got != tt.want {
			t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}
