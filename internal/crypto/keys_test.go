package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateX25519_Clamped(t *testing.T) {
	priv, pub, err := GenerateX25519()
	require.NoError(t, err)
	require.Len(t, priv, KeyBytes)
	require.Len(t, pub, KeyBytes)

	assert.Zero(t, priv[0]&7)
	assert.Zero(t, priv[31]&128)
	assert.NotZero(t, priv[31]&64)
}

func TestDH_SharedSecretAgrees(t *testing.T) {
	aPriv, aPub, err := GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := GenerateX25519()
	require.NoError(t, err)

	ab, err := DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := DH(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestPrivateKeyPEM_RoundTrip(t *testing.T) {
	priv, _, err := GenerateX25519()
	require.NoError(t, err)

	pemBytes := EncodePrivateKeyPEM(priv)
	got, err := DecodePrivateKeyPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, priv, got)
}

func TestDecodePrivateKeyPEM_Malformed(t *testing.T) {
	_, err := DecodePrivateKeyPEM([]byte("not pem at all"))
	assert.ErrorIs(t, err, ErrBadPrivateKeyPEM)

	_, err = DecodePrivateKeyPEM([]byte("-----BEGIN SOMETHING ELSE-----\nAAAA\n-----END SOMETHING ELSE-----\n"))
	assert.ErrorIs(t, err, ErrBadPrivateKeyPEM)
}

func TestFingerprint_StableAndShort(t *testing.T) {
	_, pub, err := GenerateX25519()
	require.NoError(t, err)

	fp := Fingerprint(pub)
	assert.Len(t, fp, 20)
	assert.Equal(t, fp, Fingerprint(pub))
}

func TestWipe(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	Wipe(b)
	assert.Equal(t, make([]byte, 4), b)
	Wipe(nil)
}
