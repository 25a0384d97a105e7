// Package server assembles the relay's HTTP surface: account registration
// and login, the public key directory, the caller's own locked key blob,
// user search, persisted message history, and the /ws realtime handshake.
//
// The server is a blind custodian: it stores public keys and opaque locked
// private key blobs, and it relays ciphertext, but it holds nothing that
// could decrypt either. One auth.Authority instance signs and verifies
// every token in the process.
package server
