// Package store holds the persistence edges of cachet.
//
// BoltStore backs the server: registered accounts (with their opaque locked
// key blobs) and the append-only message history, all in a single bbolt
// file. The history is written by the server's envelope listener, never by
// the relay router itself.
//
// ProfileStore backs the client: a small JSON profile in the user's home
// directory caching the server URL, identity and session token. It never
// holds key material; the locked blob lives on the server and the unlocked
// key only ever lives in memory.
package store
