package guard

import (
	"testing"
)

func TestWhitelistMatch(t *testing.T) {
	t.Parallel()

	wl, err := NewWhitelist([]string{"203.0.113.7", "10.0.0.0/8", "::1", "2001:db8::/32", " 192.0.2.1 ", ""})
	if err != nil {
		t.Fatalf("NewWhitelist: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"203.0.113.7", true},
		{"203.0.113.8", false},
		{"10.1.2.3", true},
		{"11.1.2.3", false},
		{"::1", true},
		{"2001:db8::42", true},
		{"2001:db9::42", false},
		{"192.0.2.1", true}, // пробелы в конфиге срезаются
		{UnknownClientKey, false},
		{"not-an-ip", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.key, func(t *testing.T) {
			t.Parallel()
			if got := wl.Match(tc.key); got != tc.want {
				t.Errorf("Match(%q) = %v, want %v", tc.key, got, tc.want)
			}
		})
	}
}

func TestWhitelistInvalidEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []string
	}{
		{"garbage ip", []string{"10.0.0.0/8", "not-an-ip"}},
		{"garbage cidr", []string{"10.0.0.0/99"}},
		{"hostname", []string{"example.com"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewWhitelist(tc.entries); err == nil {
				t.Errorf("NewWhitelist(%v): expected error", tc.entries)
			}
		})
	}
}

func TestWhitelistNormalization(t *testing.T) {
	t.Parallel()

	// Альтернативная запись IPv6 в конфиге должна совпасть с канонической
	wl, err := NewWhitelist([]string{"0:0::1"})
	if err != nil {
		t.Fatalf("NewWhitelist: %v", err)
	}
	if !wl.Match("::1") {
		t.Error("alternative IPv6 spelling must match canonical form")
	}
	if wl.Size() != 1 {
		t.Errorf("Size = %d, want 1", wl.Size())
	}
}
