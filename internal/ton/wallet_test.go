package ton

import (
	"strings"
	"testing"

	"github.com/xssnick/tonutils-go/address"
)

func TestParseRawAddress(t *testing.T) {
	tests := []struct {
		input string
		wc    int32
		valid bool
	}{
		{"0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", 0, true},
		{"-1:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", -1, true},
		{"5:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789", 0, false},
		{"invalid", 0, false},
		{"0:short", 0, false},
		{"0:abcd", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			wc, hash, err := ParseRawAddress(tt.input)
			if tt.valid {
				if err != nil {
					t.Fatalf("expected valid, got error: %v", err)
				}
				if wc != tt.wc {
					t.Errorf("workchain = %d, want %d", wc, tt.wc)
				}
				if len(hash) != 32 {
					t.Errorf("hash len = %d, want 32", len(hash))
				}
			} else if err == nil {
				t.Fatal("expected error for invalid address")
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	friendly := address.NewAddress(0, 0, hash).String()

	got, err := NormalizeAddress(friendly)
	if err != nil {
		t.Fatalf("friendly address rejected: %v", err)
	}
	if got != friendly {
		t.Errorf("NormalizeAddress(%q) = %q", friendly, got)
	}

	raw := "0:000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	got, err = NormalizeAddress(raw)
	if err != nil {
		t.Fatalf("raw address rejected: %v", err)
	}
	if got != friendly {
		t.Errorf("NormalizeAddress(%q) = %q, want %q", raw, got, friendly)
	}
}

func TestNormalizeAddress_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not-an-address", "0:zz"} {
		if _, err := NormalizeAddress(in); err == nil {
			t.Errorf("NormalizeAddress(%q) expected error", in)
		} else if in != "" && strings.TrimSpace(in) != "" && !strings.Contains(err.Error(), "TON") {
			t.Errorf("unexpected error text: %v", err)
		}
	}
}
