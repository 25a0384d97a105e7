// Package auth issues and verifies the bearer tokens used by the HTTP
// surface and the realtime handshake, and hashes account passwords.
//
// One Authority instance is wired through both the issuance and the
// verification paths, so the signing secret and algorithm can never drift
// apart between them.
package auth
