// Package relay is the realtime core of the server: it authenticates
// WebSocket connections, tracks which identity is reachable on which live
// connection, and blind-forwards sealed envelopes between exactly two
// parties.
//
// The three pieces mirror their responsibilities:
//
//   - Registry maps a stable identity to at most one live Handle. A new
//     connection for the same identity supersedes the old one, which is
//     proactively closed. Removal is guarded by handle comparison so a
//     stale disconnect can never evict a newer connection.
//   - Gateway owns each connection for its lifetime. Every connection walks
//     Connecting → Authenticating → Authenticated → Closed; any
//     verification failure refuses the handshake before the registry is
//     touched. Teardown runs exactly once no matter how many disconnect
//     signals race.
//   - Router validates a sender's request, stamps the authenticated sender
//     identity and the server time, and hands the envelope to the
//     recipient's outbound queue. It never inspects ciphertext and never
//     waits for the recipient.
//
// No registry lock is held while forwarding or while calling out to the
// token verifier; lookups release the lock before any delivery happens.
package relay
