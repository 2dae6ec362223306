// Package seal encrypts outbound transcript text. Sealing is best
// effort: a sealer that is not ready or fails just means the text goes
// out in plaintext.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
)

// Envelope is the sealed form of a transcript.
type Envelope struct {
	CipherText string `json:"ciphertext"`
	IV         string `json:"iv"`
	KeyID      string `json:"key_id"`
}

// Compact renders the envelope as a single pasteable line.
func (e Envelope) Compact() string {
	return fmt.Sprintf("sealed:%s:%s:%s", e.KeyID, e.IV, e.CipherText)
}

type Sealer interface {
	Ready() bool
	Encrypt(text string) (Envelope, error)
}

// AESSealer seals text with AES-256-GCM. The zero value is not ready;
// use New. Close releases the key material and makes Ready return
// false for the rest of the process lifetime.
type AESSealer struct {
	mu    sync.Mutex
	aead  cipher.AEAD
	keyID string
}

// New builds a sealer from a hex-encoded 256-bit key.
func New(hexKey string) (*AESSealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(key)
	return &AESSealer{
		aead:  aead,
		keyID: hex.EncodeToString(sum[:4]),
	}, nil
}

func (s *AESSealer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aead != nil
}

func (s *AESSealer) Encrypt(text string) (Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aead == nil {
		return Envelope{}, fmt.Errorf("sealer closed")
	}
	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("generating iv: %w", err)
	}
	sealed := s.aead.Seal(nil, iv, []byte(text), nil)
	return Envelope{
		CipherText: base64.StdEncoding.EncodeToString(sealed),
		IV:         base64.StdEncoding.EncodeToString(iv),
		KeyID:      s.keyID,
	}, nil
}

func (s *AESSealer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aead = nil
}

// Fake is a test sealer that marks text without encrypting it.
type Fake struct {
	ready   bool
	failErr error

	mu     sync.Mutex
	sealed []string
}

func NewFake(ready bool) *Fake { return &Fake{ready: ready} }

// FailWith makes every Encrypt call return err.
func (f *Fake) FailWith(err error) { f.failErr = err }

func (f *Fake) Ready() bool { return f.ready }

func (f *Fake) Encrypt(text string) (Envelope, error) {
	if f.failErr != nil {
		return Envelope{}, f.failErr
	}
	f.mu.Lock()
	f.sealed = append(f.sealed, text)
	f.mu.Unlock()
	return Envelope{
		CipherText: base64.StdEncoding.EncodeToString([]byte(text)),
		IV:         "fake-iv",
		KeyID:      "fake",
	}, nil
}

// Sealed returns every text passed to Encrypt.
func (f *Fake) Sealed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sealed...)
}
