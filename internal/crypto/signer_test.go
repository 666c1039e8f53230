package crypto

import (
	"strings"
	"testing"
	"time"
)

// A well-known test vector key; never used outside tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSigner_SignAndRecover(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	msg := []byte("veridict:predict:m1:YES:70")
	sig, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+130 {
		t.Fatalf("signature format: %q", sig)
	}

	recovered, err := RecoverAddress(msg, sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered, signer.Address())
	}

	ok, err := VerifySignature(signer.Address(), msg, sig)
	if err != nil || !ok {
		t.Errorf("VerifySignature = %v, %v; want true, nil", ok, err)
	}
}

func TestRecoverAddress_TamperedMessage(t *testing.T) {
	signer, err := NewSigner("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig, err := signer.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	recovered, err := RecoverAddress([]byte("tampered"), sig)
	if err == nil && recovered == signer.Address() {
		t.Error("tampered message recovered the signer's address")
	}
}

func TestRecoverAddress_BadSignature(t *testing.T) {
	if _, err := RecoverAddress([]byte("msg"), "0xdeadbeef"); err == nil {
		t.Error("expected error for short signature")
	}
	if _, err := RecoverAddress([]byte("msg"), "not-hex"); err == nil {
		t.Error("expected error for non-hex signature")
	}
}

func TestSignAttestation_Deterministic(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sig1, err := signer.SignAttestation("m1", true, at)
	if err != nil {
		t.Fatalf("SignAttestation: %v", err)
	}
	sig2, err := signer.SignAttestation("m1", true, at)
	if err != nil {
		t.Fatalf("SignAttestation: %v", err)
	}
	if sig1 != sig2 {
		t.Error("attestation signatures differ for identical input")
	}

	recovered, err := RecoverAddress(AttestationMessage("m1", true, at), sig1)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered, signer.Address())
	}
}

func TestEncryptDecryptKey_RoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("round trip changed key")
	}

	if _, err := DecryptKey(blob, "wrong password"); err == nil {
		t.Error("expected error for wrong password")
	}
}
