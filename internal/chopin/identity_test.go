package chopin_test

import (
	"strings"
	"testing"

	"github.com/chopinframework/chopd/internal/chopin"
)

func TestMintAndParseTokenRoundTrip(t *testing.T) {
	addr := chopin.RandomAddress()
	token, err := chopin.MintToken(addr)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if !strings.HasSuffix(token, ".") {
		t.Fatalf("expected an unsigned token (trailing empty signature segment), got %q", token)
	}

	got, ok := chopin.ParseToken(token)
	if !ok {
		t.Fatal("ParseToken: ok = false, want true")
	}
	if got != addr {
		t.Fatalf("ParseToken address = %q, want %q", got, addr)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, ok := chopin.ParseToken("not-a-jwt"); ok {
		t.Fatal("expected ParseToken to reject a non-JWT string")
	}
}

func TestIsValidAddress(t *testing.T) {
	cases := map[string]bool{
		"0x1111111111111111111111111111111111111111": true,
		"0X1111111111111111111111111111111111111111": false, // must be lowercase 0x
		"0x111":               false,
		"not-an-address":      false,
		"":                    false,
	}
	for addr, want := range cases {
		if got := chopin.IsValidAddress(addr); got != want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}
