package seal

import (
	"encoding/hex"
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealRoundTripDistinctIVs(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Ready() {
		t.Fatal("sealer not ready after New")
	}

	e1, err := s.Encrypt("patient presents with dyspnea")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	e2, err := s.Encrypt("patient presents with dyspnea")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if e1.IV == e2.IV {
		t.Error("two envelopes share an IV")
	}
	if e1.CipherText == e2.CipherText {
		t.Error("identical ciphertext for distinct IVs")
	}
	if e1.KeyID != e2.KeyID || e1.KeyID == "" {
		t.Errorf("key ids %q / %q", e1.KeyID, e2.KeyID)
	}
	if !strings.HasPrefix(e1.Compact(), "sealed:"+e1.KeyID+":") {
		t.Errorf("Compact = %q", e1.Compact())
	}
}

func TestSealKeyValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"not hex", "zz"},
		{"short key", hex.EncodeToString(make([]byte, 16))},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.key); err == nil {
				t.Errorf("New(%q) succeeded, want error", tt.key)
			}
		})
	}
}

func TestSealClose(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()
	if s.Ready() {
		t.Error("Ready after Close")
	}
	if _, err := s.Encrypt("text"); err == nil {
		t.Error("Encrypt succeeded after Close")
	}
}
