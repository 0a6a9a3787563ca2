package identity

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"formatted US number", "(757) 555-0100", "+17575550100"},
		{"bare ten digits", "7575550100", "+17575550100"},
		{"eleven digits with country code", "17575550100", "+17575550100"},
		{"already E.164", "+1 757 555 0100", "+17575550100"},
		{"dots and dashes", "757.555.0100", "+17575550100"},
		{"international number kept verbatim", "+442071838750", "+442071838750"},
		{"short gateway number", "5550100", "+5550100"},
		{"no digits at all", "Unknown Caller", "unknown caller"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.raw, "1"); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Jane  Doe", "jane doe"},
		{"  JANE DOE  ", "jane doe"},
		{"jane\tdoe", "jane doe"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.raw); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestExtractPhoneFromGatewayEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"seven digit local part", "5550100@smsgateway.com", "+5550100"},
		{"ten digit local part", "7575550100@vtext.com", "+17575550100"},
		{"eleven digit local part", "17575550100@tmomail.net", "+17575550100"},
		{"regular address", "jane.doe@example.com", ""},
		{"digits too short", "42@example.com", ""},
		{"digits then letters", "5550100abc@example.com", ""},
		{"empty local part", "@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPhoneFromGatewayEmail(tt.email, "1"); got != tt.want {
				t.Errorf("ExtractPhoneFromGatewayEmail(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestPhonesMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "+17575550100", "+17575550100", true},
		{"suffix without country and area code", "+5550100", "+17575550100", true},
		{"suffix either order", "+17575550100", "+5550100", true},
		{"different numbers", "+17575550100", "+17575550199", false},
		{"suffix too short", "+50100", "+17575550100", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhonesMatch(tt.a, tt.b); got != tt.want {
				t.Errorf("PhonesMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
