package crypto

import (
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	sealed, err := s.Seal("sk-ant-example-credential")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if sealed == "sk-ant-example-credential" {
		t.Fatal("sealed value equals plaintext")
	}
	if strings.Count(sealed, ":") != 2 {
		t.Fatalf("sealed value %q not in nonce:tag:ct form", sealed)
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if plain != "sk-ant-example-credential" {
		t.Errorf("Open() = %q, want original plaintext", plain)
	}
}

func TestSealEmpty(t *testing.T) {
	s, _ := NewSealer(testKey)
	sealed, err := s.Seal("")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if sealed != "" {
		t.Errorf("Seal(\"\") = %q, want empty", sealed)
	}
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	for _, key := range []string{"", "abcd", "zz" + testKey[2:]} {
		if _, err := NewSealer(key); err == nil {
			t.Errorf("NewSealer(%q) expected error", key)
		}
	}
}

func TestOpenLenient(t *testing.T) {
	s, _ := NewSealer(testKey)
	sealed, _ := s.Seal("secret-value")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sealed value", sealed, "secret-value"},
		{"legacy plaintext", "plain-api-key", "plain-api-key"},
		{"plaintext with colons", "a:b:c", "a:b:c"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.OpenLenient(tt.in); got != tt.want {
				t.Errorf("OpenLenient(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	s, _ := NewSealer(testKey)
	sealed, _ := s.Seal("secret-value")

	parts := strings.SplitN(sealed, ":", 3)
	flipped := []byte(parts[2])
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(flipped)

	if _, err := s.Open(tampered); err == nil {
		t.Error("Open() accepted tampered ciphertext")
	}
}
