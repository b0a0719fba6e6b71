package keystore

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}

	msg := []byte("5:0:deadbeef")
	sig, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !Verify(signer.PublicKey(), msg, sig) {
		t.Fatalf("expected signature to verify")
	}
}

func TestModifiedPayloadFailsVerification(t *testing.T) {
	signer, err := GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}

	msg := []byte("5:0:deadbeef")
	sig, _ := signer.Sign(msg)

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0xFF

	if Verify(signer.PublicKey(), tampered, sig) {
		t.Errorf("expected verification to fail for a modified payload byte")
	}
}

func TestZeroSignatureNeverVerifies(t *testing.T) {
	signer, err := GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}

	zero := make([]byte, 64)
	if Verify(signer.PublicKey(), []byte("anything"), zero) {
		t.Errorf("expected an all-zero signature to never verify")
	}
}

func TestPublicKeyEncodeDecodeRoundTrip(t *testing.T) {
	signer, err := GenerateInMemorySigner()
	if err != nil {
		t.Fatalf("GenerateInMemorySigner: %v", err)
	}

	encoded := EncodePublicKey(signer.PublicKey())
	decoded, err := DecodePublicKey(encoded)
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	if string(decoded) != string(signer.PublicKey()) {
		t.Errorf("expected decoded public key to match original")
	}
}
