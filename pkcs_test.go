package jksconvert_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/sensiblebit/jksconvert"
	"github.com/sensiblebit/jksconvert/internal/testpki"
)

func TestEncodeDecodePKCS12(t *testing.T) {
	// WHY: The intermediate container must carry the key, the leaf, and the
	// CA certificates through unchanged.
	t.Parallel()

	pki := testpki.New(t, "p12.example.com")
	data := pki.PKCS12(t, "changeit")

	key, leaf, cas, err := jksconvert.DecodePKCS12(data, "changeit")
	if err != nil {
		t.Fatalf("DecodePKCS12: %v", err)
	}
	if !leaf.Equal(pki.Leaf) {
		t.Error("leaf does not round-trip")
	}
	if len(cas) != 1 || !cas[0].Equal(pki.CA) {
		t.Errorf("got %d CA certificates", len(cas))
	}
	if match, _ := jksconvert.KeyMatchesCert(key, leaf); !match {
		t.Error("key does not match leaf")
	}

	if _, _, _, err := jksconvert.DecodePKCS12(data, "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}
}

func TestEncodePKCS12_KeyTypes(t *testing.T) {
	// WHY: Only key types PKCS#12 can carry are accepted; anything else fails
	// before encoding.
	t.Parallel()

	pki := testpki.New(t, "types.example.com")
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		key     any
		wantErr bool
	}{
		{"rsa", pki.LeafKey, false},
		{"ecdsa", ecKey, false},
		{"ed25519", edKey, false},
		{"ed25519 pointer", &edKey, false},
		{"unsupported", "not a key", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := jksconvert.EncodePKCS12(tt.key, pki.Leaf, nil, "changeit")
			if (err != nil) != tt.wantErr {
				t.Errorf("EncodePKCS12 err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodePKCS7_Empty(t *testing.T) {
	// WHY: Garbage must not be mistaken for an empty certificate bundle.
	t.Parallel()

	if _, err := jksconvert.DecodePKCS7([]byte{0x30, 0x00}); err == nil {
		t.Error("expected error")
	}
}
