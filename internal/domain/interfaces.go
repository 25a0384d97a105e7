package domain

import "context"

// TokenVerifier checks a bearer token and resolves the identity it was
// issued to. Issuance and verification must share one secret and algorithm;
// the server wires a single instance through both paths.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// AccountStore persists registered accounts. The private key blob inside an
// Account is opaque to every implementation.
type AccountStore interface {
	CreateAccount(a Account) error
	AccountByID(id UserID) (Account, error)
	AccountByUsername(username string) (Account, error)
	SearchAccounts(query string, limit int) ([]Account, error)
}

// HistoryStore is the append-only message history collaborator, keyed by
// participant pair and timestamp. The relay router never writes to it; the
// server's history listener does.
type HistoryStore interface {
	AppendEnvelope(env Envelope) error
	EnvelopesBetween(a, b UserID, limit int) ([]Envelope, error)
}

// PublicKeyRecord is a directory entry: the key itself plus the algorithm
// tag a sender must seal with.
type PublicKeyRecord struct {
	PublicKey []byte `json:"public_key"`
	Algorithm string `json:"algorithm"`
}

// Directory resolves a user's registered public key.
type Directory interface {
	PublicKey(ctx context.Context, id UserID) (PublicKeyRecord, error)
}

// RelayClient is the client side of the relay: REST collaborator calls plus
// account lifecycle. The live channel is a separate Socket.
type RelayClient interface {
	Register(ctx context.Context, username, displayName, password string, publicKey []byte, algorithm string, blob KeyBlob) (token string, id Identity, err error)
	Login(ctx context.Context, username, password string) (token string, acct Account, err error)
	PublicKey(ctx context.Context, token string, id UserID) (PublicKeyRecord, error)
	PrivateKeyBlob(ctx context.Context, token string) (KeyBlob, string, error)
	Search(ctx context.Context, token, query string) ([]Identity, error)
	History(ctx context.Context, token string, with UserID, limit int) ([]Envelope, error)
}
