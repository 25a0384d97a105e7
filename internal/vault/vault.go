package vault

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"cachet/internal/crypto"
	"cachet/internal/domain"
)

const (
	// SaltBytes is the size of the per-account KDF salt.
	SaltBytes = 16

	// Argon2id cost parameters for the key-encryption key.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrKeyUnlock is the only error Unlock returns. Wrong password and
// corrupted blob are deliberately indistinguishable so a caller cannot be
// used as a password oracle.
var ErrKeyUnlock = errors.New("key unlock failed")

// NewSalt returns a fresh random per-account salt. It is generated once at
// account creation and travels with the blob, so lock and unlock always
// agree on it.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Lock encrypts PEM-encoded private key material under a password-derived
// key. A fresh IV is drawn per call; calling Lock twice with the same
// inputs never yields the same blob.
func Lock(privateKeyPEM []byte, password string, salt []byte) (domain.KeyBlob, error) {
	if len(salt) != SaltBytes {
		return domain.KeyBlob{}, errors.New("bad salt size")
	}
	kek := deriveKEK(password, salt)
	defer crypto.Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return domain.KeyBlob{}, err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return domain.KeyBlob{}, err
	}
	ct := aead.Seal(nil, iv, privateKeyPEM, salt)

	return domain.KeyBlob{Ciphertext: ct, IV: iv, Salt: salt}, nil
}

// Unlock decrypts a locked blob and returns the PEM-encoded private key.
// The result lives only in the caller's memory; it is never logged or sent
// anywhere by this package.
func Unlock(blob domain.KeyBlob, password string) ([]byte, error) {
	if len(blob.Salt) != SaltBytes {
		return nil, ErrKeyUnlock
	}
	kek := deriveKEK(password, blob.Salt)
	defer crypto.Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, ErrKeyUnlock
	}
	if len(blob.IV) != aead.NonceSize() {
		return nil, ErrKeyUnlock
	}
	pt, err := aead.Open(nil, blob.IV, blob.Ciphertext, blob.Salt)
	if err != nil {
		return nil, ErrKeyUnlock
	}
	return pt, nil
}

func deriveKEK(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
