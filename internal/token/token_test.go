package token

import (
	"strings"
	"testing"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	tok, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 32 байта без паддинга — всегда 43 символа
	if len(tok) != 43 {
		t.Fatalf("expected 43 chars, got %d (%q)", len(tok), tok)
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for _, c := range tok {
		if !strings.ContainsRune(alphabet, c) {
			t.Fatalf("token contains non URL-safe char %q", c)
		}
	}
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token after %d generations", i)
		}
		seen[tok] = true
	}
}

func TestConstantTimeEquals(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()

	if !ConstantTimeEquals(a, a) {
		t.Fatal("token must equal itself")
	}
	if ConstantTimeEquals(a, b) {
		t.Fatal("distinct tokens must not be equal")
	}
	if ConstantTimeEquals(a, a[:len(a)-1]) {
		t.Fatal("prefix must not be equal")
	}
	if ConstantTimeEquals("", a) {
		t.Fatal("empty token must not match")
	}
}
