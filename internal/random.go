package internal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	codeSaltSize = 16
	sealKeySize  = 32
)

var (
	ErrInvalidSealKey    = errors.New("seal key must be 32 bytes")
	ErrSealedCodeInvalid = errors.New("sealed code invalid")
)

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

func NewCodeSalt() ([codeSaltSize]byte, error) {
	var salt [codeSaltSize]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

// DigestCode binds a recovery code to its record salt.
func DigestCode(salt [codeSaltSize]byte, code string) [32]byte {
	h := sha256.New()
	h.Write(salt[:])
	h.Write([]byte(code))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sealer encrypts recovery codes at rest with AES-256-GCM. The nonce is
// prefixed to the ciphertext and the record UID is bound as additional data.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != sealKeySize {
		return nil, ErrInvalidSealKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(uid, code string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return s.aead.Seal(nonce, nonce, []byte(code), []byte(uid)), nil
}

func (s *Sealer) Open(uid string, sealed []byte) (string, error) {
	size := s.aead.NonceSize()
	if len(sealed) < size {
		return "", ErrSealedCodeInvalid
	}

	plain, err := s.aead.Open(nil, sealed[:size], sealed[size:], []byte(uid))
	if err != nil {
		return "", ErrSealedCodeInvalid
	}
	return string(plain), nil
}
