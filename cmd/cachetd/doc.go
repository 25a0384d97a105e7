// Package main runs the cachet relay server: account registry, public key
// directory, encrypted message history, and the realtime envelope channel.
// The server never sees plaintext or unlocked private keys; it stores
// ciphertext, public keys, and passphrase-locked key blobs.
//
// HTTP API
//
//	POST /api/auth/register
//	    Create an account: username, password, display name, public key,
//	    algorithm tag, and the locked private key blob. Returns a bearer
//	    token and the new identity.
//
//	POST /api/auth/login
//	    Authenticate by username and password. Returns a bearer token, the
//	    account view, and the locked key blob for local unlock.
//
//	GET /api/identity/{id}/publicKey
//	    Return the public key and algorithm tag registered for {id}.
//
//	GET /api/me/privateKeyBlob
//	    Return the caller's own locked key blob. Never anyone else's.
//
//	GET /api/users/search?q=...
//	    Case-insensitive username search.
//
//	GET /api/messages?with={id}&limit=N
//	    Return stored envelopes between the caller and {id}, oldest first.
//
//	GET /ws
//	    Upgrade to the realtime channel. The bearer token is checked before
//	    the upgrade; an unauthenticated request is refused with 401.
//
// All routes except register and login require "Authorization: Bearer
// <token>". The WebSocket endpoint also accepts ?token= for clients that
// cannot set headers. Responses are JSON; non-2xx statuses carry a short
// error message.
//
// State lives in a single bbolt file given by --db. The token signing
// secret comes from --secret or the CACHET_SECRET environment variable.
package main
