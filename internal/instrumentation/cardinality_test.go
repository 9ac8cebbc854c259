package instrumentation

import "testing"

func TestSenderDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"billing@Supplier.Example", "supplier.example"},
		{"user@gmail.com", "gmail.com"},
		{"invalid", "unknown"},
		{"trailing@", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := SenderDomain(tt.email); got != tt.want {
				t.Errorf("SenderDomain(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}
