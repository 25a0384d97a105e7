// Package crypto exposes the primitives cachet builds on.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - PEM framing for private key material (EncodePrivateKeyPEM,
//     DecodePrivateKeyPEM)
//   - The hybrid envelope codec: Seal wraps a fresh per-message symmetric key
//     under the recipient's public key, Open unwraps and decrypts (see
//     envelope.go for the suite registry)
//   - Short public-key fingerprints for display (Fingerprint)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// # Notes
//
// Callers should treat returned secrets as sensitive and rely on Wipe when
// practical to reduce lifetime in memory. Open collapses every failure mode
// into ErrDecrypt so callers cannot build a decryption oracle out of error
// detail.
package crypto
