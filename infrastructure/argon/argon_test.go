package argon

import "testing"

func TestCreateAndCompare(t *testing.T) {
	hash, err := CreateHash("4912", DefaultParams)
	if err != nil {
		t.Fatalf("create hash: %v", err)
	}
	ok, err := ComparePinAndHash("4912", hash)
	if err != nil {
		t.Fatalf("compare hash: %v", err)
	}
	if !ok {
		t.Fatalf("expected pin to match")
	}

	ok, err = ComparePinAndHash("0000", hash)
	if err != nil {
		t.Fatalf("compare hash wrong: %v", err)
	}
	if ok {
		t.Fatalf("expected pin mismatch")
	}
}

func TestCreateHashRejectsBlankPin(t *testing.T) {
	if _, err := CreateHash("   ", nil); err == nil {
		t.Fatalf("expected blank pin rejection")
	}
}
