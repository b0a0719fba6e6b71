package merkle

import "testing"

func TestEmptyTreeRoot(t *testing.T) {
	tr := New()
	root := tr.Root()
	var zero [32]byte
	if root != zero {
		t.Errorf("expected zero root for empty tree, got %x", root)
	}
}

func TestUpdateIncrementsVersion(t *testing.T) {
	tr := New()
	v1 := tr.Update([]byte("a"), []byte("1"))
	v2 := tr.Update([]byte("b"), []byte("2"))
	v3 := tr.Update([]byte("a"), []byte("3"))

	if v1 != 1 || v2 != 2 || v3 != 3 {
		t.Fatalf("expected versions 1,2,3, got %d,%d,%d", v1, v2, v3)
	}

	n, ok := tr.Get([]byte("a"))
	if !ok || string(n.Value) != "3" || n.Version != 3 {
		t.Fatalf("expected updated node with value 3 version 3, got %+v ok=%v", n, ok)
	}
}

func TestDeterminism(t *testing.T) {
	build := func() [32]byte {
		tr := New()
		tr.Update([]byte("a"), []byte("1"))
		tr.Update([]byte("b"), []byte("2"))
		tr.Update([]byte("c"), []byte("3"))
		return tr.Root()
	}

	r1 := build()
	r2 := build()
	if r1 != r2 {
		t.Errorf("expected identical roots for identical update sequences, got %x != %x", r1, r2)
	}
}

func TestProofRoundTrip(t *testing.T) {
	tr := New()
	tr.Update([]byte("a"), []byte("1"))
	tr.Update([]byte("b"), []byte("2"))
	tr.Update([]byte("c"), []byte("3"))

	proof, err := tr.CreateProof([]byte("b"))
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}

	if len(proof.Siblings) != 2 {
		t.Errorf("expected ceil(log2(3))=2 siblings, got %d", len(proof.Siblings))
	}

	if !VerifyProof(proof) {
		t.Fatalf("expected proof to verify")
	}

	flipped := *proof
	flipped.Siblings = append([][32]byte(nil), proof.Siblings...)
	flipped.Siblings[0][0] ^= 0xFF
	if VerifyProof(&flipped) {
		t.Errorf("expected proof to fail after flipping a sibling byte")
	}
}

func TestProofMissingKey(t *testing.T) {
	tr := New()
	tr.Update([]byte("a"), []byte("1"))

	if _, err := tr.CreateProof([]byte("missing")); err == nil {
		t.Errorf("expected error for missing key")
	}
}

func TestNewFromMapDeterministic(t *testing.T) {
	data := map[string][]byte{"x": []byte("1"), "y": []byte("2"), "z": []byte("3")}
	t1 := NewFromMap(data)
	t2 := NewFromMap(data)

	if t1.Root() != t2.Root() {
		t.Errorf("expected NewFromMap to be deterministic regardless of map iteration order")
	}
}
