package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the width of the nonce field at the start of a sealed blob
	NonceSize = 12
	// TagSize is the width of the authentication tag that follows the nonce
	TagSize = 16
	// Overhead is the number of bytes a sealed blob adds to its plaintext
	Overhead = NonceSize + TagSize

	// KeySize is the key length produced by GenerateKey and DeriveKey
	KeySize = 32
	// SaltSize is the length of salts produced by GenerateSalt
	SaltSize = 16

	// Argon2id parameters
	DefaultMemory      = 64 * 1024 // 64 MB
	DefaultIterations  = 3
	DefaultParallelism = 1
)

// Supported cipher names
const (
	CipherAESGCM           = "aes-256-gcm"
	CipherChaCha20Poly1305 = "chacha20-poly1305"
)

var (
	// ErrInvalidKey is returned when key material has the wrong encoding or length
	ErrInvalidKey = errors.New("invalid encryption key")
	// ErrShortBlob is returned when a sealed blob is too short to hold a nonce and tag
	ErrShortBlob = errors.New("sealed blob too short")
	// ErrUnknownCipher is returned for an unsupported cipher name
	ErrUnknownCipher = errors.New("unknown cipher")
)

// KDFParams holds Argon2id parameters
type KDFParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns sensible default parameters
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      DefaultMemory,
		Iterations:  DefaultIterations,
		Parallelism: DefaultParallelism,
	}
}

// DeriveKey derives a symmetric key from a passphrase using Argon2id
func DeriveKey(passphrase []byte, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(passphrase, salt, params.Iterations, params.Memory, params.Parallelism, KeySize)
}

// GenerateSalt generates a random salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateKey generates a random symmetric key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// ParseHexKey decodes a hex-encoded key
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return key, nil
}

// Sealer encrypts and decrypts whole blobs with a single AEAD key.
//
// A sealed blob is nonce(12) || tag(16) || ciphertext. Go's AEADs append the
// tag to the ciphertext, so Seal and Open move it to and from the front.
type Sealer struct {
	aead   cipher.AEAD
	cipher string
}

// NewSealer creates a Sealer for the named cipher. An empty name selects
// AES-256-GCM. AES accepts 16, 24 or 32 byte keys; ChaCha20-Poly1305 needs 32.
func NewSealer(key []byte, cipherName string) (*Sealer, error) {
	if cipherName == "" {
		cipherName = CipherAESGCM
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch cipherName {
	case CipherAESGCM:
		block, berr := aes.NewCipher(key)
		if berr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, berr)
		}
		aead, err = cipher.NewGCM(block)
	case CipherChaCha20Poly1305:
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: chacha20-poly1305 needs %d bytes, got %d", ErrInvalidKey, chacha20poly1305.KeySize, len(key))
		}
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, cipherName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &Sealer{aead: aead, cipher: cipherName}, nil
}

// Cipher returns the cipher name
func (s *Sealer) Cipher() string {
	return s.cipher
}

// Seal encrypts plaintext under a fresh random nonce
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	out := make([]byte, 0, Overhead+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open verifies and decrypts a sealed blob. No plaintext is returned unless
// the tag verifies.
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, ErrShortBlob
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize:Overhead]
	ciphertext := blob[Overhead:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Zeroize overwrites a byte slice with zeros to clear sensitive data from memory
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
