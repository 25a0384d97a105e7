package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm tags carried on the wire. A receiver selects the matching suite
// by tag; anything else fails closed.
const (
	AlgX25519ChaCha20Poly1305 = "x25519-chacha20poly1305-v1"
	AlgMLKEM768AESGCM         = "mlkem768-aesgcm-v1"

	// DefaultAlgorithm is what new accounts are created with.
	DefaultAlgorithm = AlgX25519ChaCha20Poly1305
)

var (
	// ErrDecrypt is the only error Open returns. Authentication-tag
	// mismatch, malformed input and key mismatch are deliberately
	// indistinguishable.
	ErrDecrypt = errors.New("envelope decrypt failed")

	// ErrUnsupportedAlgorithm is returned for an unknown algorithm tag.
	// No default cipher is ever attempted.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)

// Sealed is the cryptographic portion of an envelope: the payload encrypted
// under a fresh single-use message key, and that key wrapped under the
// recipient's public key. The message key never leaves Seal unwrapped and is
// never reused across envelopes.
type Sealed struct {
	Algorithm  string
	Ciphertext []byte
	IV         []byte
	WrappedKey []byte
}

// suite is one concrete hybrid scheme: a KEM-style key wrap plus an
// authenticated payload cipher.
type suite interface {
	generate() (priv, pub []byte, err error)
	wrap(recipientPub, messageKey []byte) ([]byte, error)
	unwrap(recipientPriv, wrapped []byte) ([]byte, error)
	payloadAEAD(key []byte) (cipher.AEAD, error)
}

var suites = map[string]suite{
	AlgX25519ChaCha20Poly1305: x25519Suite{},
	AlgMLKEM768AESGCM:         mlkemSuite{},
}

// GenerateKeyPair creates a key pair for the given algorithm tag.
func GenerateKeyPair(algorithm string) (priv, pub []byte, err error) {
	s, ok := suites[algorithm]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return s.generate()
}

// Seal encrypts plaintext for the holder of recipientPub.
//
// A fresh 32-byte message key and IV are drawn per call; the payload is
// encrypted under them with the suite's authenticated cipher, and the
// message key is wrapped under recipientPub. The message key is wiped
// before returning.
func Seal(algorithm string, recipientPub, plaintext []byte) (Sealed, error) {
	s, ok := suites[algorithm]
	if !ok {
		return Sealed{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	messageKey := make([]byte, KeyBytes)
	if _, err := rand.Read(messageKey); err != nil {
		return Sealed{}, err
	}
	defer Wipe(messageKey)

	wrapped, err := s.wrap(recipientPub, messageKey)
	if err != nil {
		return Sealed{}, fmt.Errorf("wrap message key: %w", err)
	}

	aead, err := s.payloadAEAD(messageKey)
	if err != nil {
		return Sealed{}, err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, err
	}
	ct := aead.Seal(nil, iv, plaintext, nil)

	return Sealed{
		Algorithm:  algorithm,
		Ciphertext: ct,
		IV:         iv,
		WrappedKey: wrapped,
	}, nil
}

// Open recovers the plaintext of a received envelope using the recipient's
// private key. Every failure mode returns ErrDecrypt.
func Open(recipientPriv []byte, sealed Sealed) ([]byte, error) {
	s, ok := suites[sealed.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, sealed.Algorithm)
	}

	messageKey, err := s.unwrap(recipientPriv, sealed.WrappedKey)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer Wipe(messageKey)

	aead, err := s.payloadAEAD(messageKey)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(sealed.IV) != aead.NonceSize() {
		return nil, ErrDecrypt
	}
	plaintext, err := aead.Open(nil, sealed.IV, sealed.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// ---------- x25519-chacha20poly1305-v1 ----------

// x25519Suite wraps the message key with an ephemeral X25519 exchange:
// KEK = HKDF-SHA256(DH(eph, recipient), salt = SHA-256(ephPub || recipientPub)).
// The wrap nonce is zero; the KEK is unique per envelope because the
// ephemeral key is.
type x25519Suite struct{}

const x25519WrapInfo = "cachet envelope v1 x25519 wrap"

func (x25519Suite) generate() (priv, pub []byte, err error) {
	return GenerateX25519()
}

func (x25519Suite) wrap(recipientPub, messageKey []byte) ([]byte, error) {
	if len(recipientPub) != KeyBytes {
		return nil, errors.New("bad recipient public key size")
	}
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer Wipe(ephPriv)

	shared, err := DH(ephPriv, recipientPub)
	if err != nil {
		return nil, err
	}
	defer Wipe(shared)

	kek, err := deriveWrapKey(sha256.New, shared, ephPub, recipientPub, x25519WrapInfo)
	if err != nil {
		return nil, err
	}
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	return append(ephPub, aead.Seal(nil, nonce, messageKey, nil)...), nil
}

func (x25519Suite) unwrap(recipientPriv, wrapped []byte) ([]byte, error) {
	if len(recipientPriv) != KeyBytes || len(wrapped) < KeyBytes {
		return nil, ErrDecrypt
	}
	ephPub := wrapped[:KeyBytes]
	sealedKey := wrapped[KeyBytes:]

	shared, err := DH(recipientPriv, ephPub)
	if err != nil {
		return nil, err
	}
	defer Wipe(shared)

	recipientPub, err := DH(recipientPriv, basepoint())
	if err != nil {
		return nil, err
	}
	kek, err := deriveWrapKey(sha256.New, shared, ephPub, recipientPub, x25519WrapInfo)
	if err != nil {
		return nil, err
	}
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	return aead.Open(nil, nonce, sealedKey, nil)
}

func (x25519Suite) payloadAEAD(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

// ---------- mlkem768-aesgcm-v1 ----------

// mlkemSuite wraps the message key with ML-KEM-768 encapsulation:
// KEK = HKDF-SHA512(sharedSecret, salt = SHA-256(kemCiphertext)).
// Payload and wrap both use AES-256-GCM.
type mlkemSuite struct{}

const mlkemWrapInfo = "cachet envelope v1 mlkem wrap"

func (mlkemSuite) generate() (priv, pub []byte, err error) {
	pubKey, privKey, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	pub, err = pubKey.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	priv, err = privKey.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

func (s mlkemSuite) wrap(recipientPub, messageKey []byte) ([]byte, error) {
	if len(recipientPub) != mlkem768.PublicKeySize {
		return nil, errors.New("bad recipient public key size")
	}
	var pub mlkem768.PublicKey
	pub.Unpack(recipientPub)

	kemCT := make([]byte, mlkem768.CiphertextSize)
	shared := make([]byte, mlkem768.SharedKeySize)
	pub.EncapsulateTo(kemCT, shared, nil)
	defer Wipe(shared)

	kek, err := deriveWrapKey(sha512.New, shared, kemCT, nil, mlkemWrapInfo)
	if err != nil {
		return nil, err
	}
	defer Wipe(kek)

	aead, err := s.payloadAEAD(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	return append(kemCT, aead.Seal(nil, nonce, messageKey, nil)...), nil
}

func (s mlkemSuite) unwrap(recipientPriv, wrapped []byte) ([]byte, error) {
	if len(recipientPriv) != mlkem768.PrivateKeySize || len(wrapped) < mlkem768.CiphertextSize {
		return nil, ErrDecrypt
	}
	var priv mlkem768.PrivateKey
	priv.Unpack(recipientPriv)

	kemCT := wrapped[:mlkem768.CiphertextSize]
	sealedKey := wrapped[mlkem768.CiphertextSize:]

	shared := make([]byte, mlkem768.SharedKeySize)
	priv.DecapsulateTo(shared, kemCT)
	defer Wipe(shared)

	kek, err := deriveWrapKey(sha512.New, shared, kemCT, nil, mlkemWrapInfo)
	if err != nil {
		return nil, err
	}
	defer Wipe(kek)

	aead, err := s.payloadAEAD(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	return aead.Open(nil, nonce, sealedKey, nil)
}

func (mlkemSuite) payloadAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ---------- helpers ----------

// deriveWrapKey runs HKDF over the exchanged secret. saltA and saltB are
// hashed together as the salt so the KEK binds to the exchange transcript.
func deriveWrapKey(h func() hash.Hash, secret, saltA, saltB []byte, info string) ([]byte, error) {
	hh := sha256.New()
	hh.Write(saltA)
	hh.Write(saltB)
	salt := hh.Sum(nil)

	r := hkdf.New(h, secret, salt, []byte(info))
	key := make([]byte, KeyBytes)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func basepoint() []byte {
	bp := make([]byte, KeyBytes)
	bp[0] = 9
	return bp
}
