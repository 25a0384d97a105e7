// Package vault password-protects a private key at rest and never exposes
// it without a correct unlock.
//
// Lock derives a key-encryption key from the password and a per-account
// salt with Argon2id, then seals the PEM-encoded private key with
// ChaCha20-Poly1305 under a fresh random IV. Unlock reverses it and returns
// ErrKeyUnlock on any failure; a wrong password and a corrupted blob are
// indistinguishable by error and by code path.
//
// The two-phase flow (RequestUnlock then Complete) separates fetching the
// blob from entering the secret, so prompting concerns stay out of the
// crypto contract. The decrypted key lives only inside a PrivateKeyHandle
// in the caller's memory and is wiped on Destroy.
package vault
