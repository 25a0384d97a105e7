package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"runtime"

	"golang.org/x/crypto/curve25519"
)

const (
	// KeyBytes is the size of X25519 keys and derived symmetric keys.
	KeyBytes = 32

	privateKeyPEMType = "CACHET PRIVATE KEY"
)

// ErrBadPrivateKeyPEM is returned when private key material does not parse.
var ErrBadPrivateKeyPEM = errors.New("malformed private key PEM")

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv, pub []byte, err error) {
	priv = make([]byte, KeyBytes)
	if _, err = rand.Read(priv); err != nil {
		return nil, nil, err
	}
	clamp(priv)
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// DH computes the X25519 shared secret between priv and pub.
func DH(priv, pub []byte) ([]byte, error) {
	return curve25519.X25519(priv, pub)
}

// Fingerprint returns a short hex digest of a public key for display.
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

// EncodePrivateKeyPEM frames raw private key material as PEM. The vault
// locks and unlocks this framing, never the raw bytes, so the key length
// stays suite-agnostic.
func EncodePrivateKeyPEM(priv []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: priv})
}

// DecodePrivateKeyPEM recovers raw private key material from PEM framing.
func DecodePrivateKeyPEM(data []byte) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privateKeyPEMType || len(block.Bytes) == 0 {
		return nil, ErrBadPrivateKeyPEM
	}
	return block.Bytes, nil
}

func clamp(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// Wipe overwrites b with zeroes before the buffer is released. Secrets that
// pass through this package (scalars, message keys, decoded PEM) go through
// here once their owner is done with them. Best effort: the noinline
// directive and KeepAlive discourage the compiler from eliding the stores.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
