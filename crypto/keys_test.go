package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(MRDPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(MRDPrefix)+"1") {
		t.Fatalf("encoded address %q lacks prefix", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
	if decoded.Prefix() != MRDPrefix {
		t.Fatalf("prefix = %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected error for malformed input")
	}
	if _, err := DecodeAddress("mrd1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"); err == nil {
		t.Fatalf("expected error for bad checksum")
	}
}

func TestAddressIsZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatalf("empty address should be zero")
	}
	zero := NewAddress(MRDPrefix, make([]byte, 20))
	if !zero.IsZero() {
		t.Fatalf("all-zero address should be zero")
	}
	raw := make([]byte, 20)
	raw[19] = 1
	if NewAddress(MRDPrefix, raw).IsZero() {
		t.Fatalf("non-zero address reported zero")
	}
}

func TestKeyGeneration(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.IsZero() {
		t.Fatalf("derived address is zero")
	}
	if addr.Prefix() != MRDPrefix {
		t.Fatalf("prefix = %q", addr.Prefix())
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.PubKey().Address().Equal(addr) {
		t.Fatalf("restored key derives a different address")
	}
}
