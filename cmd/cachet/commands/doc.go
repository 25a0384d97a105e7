// Package commands defines the cachet CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - register     Create an account, generating and locking a key pair
//   - login        Authenticate and cache a fresh token
//   - search       Find users by username
//   - fingerprint  Print a user's public key fingerprint
//   - send         Encrypt and send a message to a peer
//   - listen       Connect and print incoming messages as they arrive
//   - history      Fetch and decrypt stored messages with a peer
//
// # Implementation
//
// The root command builds the REST client and the profile store before any
// subcommand runs. The vault passphrase (-p) never leaves the process; the
// server only ever receives the locked blob.
package commands
