// Package client is the relay's client side: a REST client for account
// lifecycle, the key directory, and history, plus a WebSocket socket for the
// live envelope channel. All cryptography stays with the caller; this
// package moves opaque bytes.
package client
