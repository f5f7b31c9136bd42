package internal

import (
	"strings"
	"testing"
)

func TestRandomDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := RandomDigits(8)
		if err != nil {
			t.Fatalf("RandomDigits: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8 digits, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}

	if _, err := RandomDigits(4); err == nil {
		t.Fatal("expected error for too few digits")
	}
}

func TestRandomStringAlphabet(t *testing.T) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	s, err := RandomString(alphabet, 64)
	if err != nil {
		t.Fatalf("RandomString: %v", err)
	}
	for _, c := range s {
		if !strings.ContainsRune(alphabet, c) {
			t.Fatalf("character %q outside alphabet", c)
		}
	}
	if _, err := RandomString("", 5); err == nil {
		t.Fatal("expected error for empty alphabet")
	}
}

func TestRandomTokenLength(t *testing.T) {
	tok, err := RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	// 32 bytes -> 43 chars unpadded base64url
	if len(tok) != 43 {
		t.Fatalf("unexpected token length %d", len(tok))
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token not url-safe: %q", tok)
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("abcdefghijkl", 8); got != "abcdefgh" {
		t.Fatalf("ShortID = %q", got)
	}
	if got := ShortID("abc", 8); got != "abc" {
		t.Fatalf("ShortID short input = %q", got)
	}
}

// FuzzParseSessionID exercises session id parsing with arbitrary strings.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")

	sid, err := NewSessionID()
	if err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, input string) {
		parsed, err := ParseSessionID(input)
		if err != nil {
			return
		}
		if _, err := ParseSessionID(parsed.String()); err != nil {
			t.Fatalf("re-parse failed: %v", err)
		}
	})
}
